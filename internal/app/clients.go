package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/observability"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/realtime/bus"
	"github.com/yungbote/contentplan-backend/internal/services"
	"github.com/yungbote/contentplan-backend/internal/temporalx"
)

type Clients struct {
	Redis       goredis.UniversalClient
	SSEBus      bus.Bus
	Chat        strategy.ChatClient
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, opts Options, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("redis ping: %w", err)
		}
		out.Redis = rdb
		out.SSEBus = bus.NewRedisBusFromClient(log, rdb, cfg.Redis.Prefix)
	}

	// Chat provider. API-only processes with an out-of-process dispatcher
	// never call the model.
	if opts.RunWorker || cfg.Jobs.Dispatch == services.DispatchInline {
		chat, err := services.NewChatClient(ctx, log, cfg.ChatProvider)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init chat client: %w", err)
		}
		out.Chat = services.InstrumentChat(chat, metrics)
	}

	// Temporal
	out.TemporalCfg = temporalx.LoadConfig()
	if cfg.Jobs.Dispatch == services.DispatchTemporal {
		if !out.TemporalCfg.Enabled() {
			out.Close()
			return Clients{}, fmt.Errorf("JOB_DISPATCH=temporal requires TEMPORAL_ADDRESS")
		}
		if out.TemporalCfg.AutoRegister {
			if err := temporalx.EnsureNamespace(ctx, log, out.TemporalCfg); err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("ensure temporal namespace: %w", err)
			}
		}
		tc, err := temporalx.NewClient(log, out.TemporalCfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	// The bus owns the redis client when both are set.
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	} else if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
