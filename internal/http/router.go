package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/contentplan-backend/internal/http/handlers"
	httpMW "github.com/yungbote/contentplan-backend/internal/http/middleware"
	"github.com/yungbote/contentplan-backend/internal/observability"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	PlanHandler     *httpH.PlanHandler
	JobHandler      *httpH.JobHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Strategy plans
		if cfg.PlanHandler != nil {
			api.POST("/strategy-plans", cfg.PlanHandler.CreatePlan)
			api.GET("/strategy-plans", cfg.PlanHandler.ListPlans)
			api.GET("/strategy-plans/:id", cfg.PlanHandler.GetPlan)
			api.GET("/strategy-plans/:id/items", cfg.PlanHandler.ListItems)
			api.POST("/strategy-plans/:id/creator", cfg.PlanHandler.StartCreator)
			api.POST("/strategy-plans/:id/materialize", cfg.PlanHandler.Materialize)
			api.GET("/ai-responses", cfg.PlanHandler.ListAiResponses)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/strategy-plans/:id/events", cfg.RealtimeHandler.PlanEvents)
			api.GET("/users/:id/events", cfg.RealtimeHandler.UserEvents)
		}

		// Jobs
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
			api.GET("/strategy-plans/:id/jobs", cfg.JobHandler.ListPlanJobs)
		}
	}

	return r
}
