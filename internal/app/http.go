package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/contentplan-backend/internal/http"
	httpH "github.com/yungbote/contentplan-backend/internal/http/handlers"
	"github.com/yungbote/contentplan-backend/internal/observability"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Plan     *httpH.PlanHandler
	Job      *httpH.JobHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Plan:     httpH.NewPlanHandler(services.Strategy),
		Job:      httpH.NewJobHandler(services.JobService),
		Realtime: httpH.NewRealtimeHandler(log, sseHub),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         metrics,
		PlanHandler:     handlers.Plan,
		JobHandler:      handlers.Job,
		RealtimeHandler: handlers.Realtime,
		HealthHandler:   handlers.Health,
	})
}
