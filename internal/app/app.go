package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/contentplan-backend/internal/data/db"
	apphttp "github.com/yungbote/contentplan-backend/internal/http"
	"github.com/yungbote/contentplan-backend/internal/observability"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/realtime"
)

// Options selects which long-running parts a process hosts.
type Options struct {
	RunServer bool
	RunWorker bool
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Opts     Options
	Repos    Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics
	Server   *apphttp.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, cfg Config, opts Options) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelCfg := observability.LoadOtelConfig()
	if otelCfg.ServiceName == "" {
		otelCfg.ServiceName = cfg.ServiceName
	}
	otelShutdown := observability.InitOTel(ctx, log, otelCfg)
	metrics := observability.Init()

	dbService, err := OpenDB(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	theDB := dbService.DB()

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)

	clients, err := wireClients(ctx, log, cfg, opts, metrics)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(theDB, log, cfg, opts, reposet, ssehub, clients, metrics)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Opts:         opts,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		SSEHub:       ssehub,
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}
	if opts.RunServer {
		a.Server = wireServer(log, cfg, wireHandlers(theDB, log, serviceset, ssehub), metrics)
	}
	return a, nil
}

// OpenDB connects with the configured driver and migrates the schema.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.NewService(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return svc, nil
}

// Run blocks until ctx is done or one of the hosted parts fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Server == nil && a.Services.JobWorker == nil && a.Services.TemporalWorker == nil {
		return fmt.Errorf("nothing to run (dispatch=%s)", a.Cfg.Jobs.Dispatch)
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Opts.RunServer && a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(gctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
	}
	if a.Metrics != nil {
		a.Metrics.StartJobQueueCollector(gctx, a.Log, a.DB, time.Duration(a.Cfg.Jobs.QueueMetricsSeconds)*time.Second)
	}

	if a.Server != nil {
		g.Go(func() error {
			a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
			return a.Server.Run(gctx, a.Cfg.HTTPAddr)
		})
	}
	if w := a.Services.JobWorker; w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}
	if tw := a.Services.TemporalWorker; tw != nil {
		g.Go(func() error { return tw.Run(gctx) })
	}
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
