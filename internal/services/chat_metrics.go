package services

import (
	"context"
	"time"

	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/observability"
)

type instrumentedChat struct {
	strategy.ChatClient
	metrics *observability.Metrics
}

// InstrumentChat records latency and status of every chat call.
func InstrumentChat(c strategy.ChatClient, m *observability.Metrics) strategy.ChatClient {
	if m == nil {
		return c
	}
	return &instrumentedChat{ChatClient: c, metrics: m}
}

func (c *instrumentedChat) Chat(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	out, err := c.ChatClient.Chat(ctx, system, user)
	c.metrics.ObserveChat(c.Provider(), c.Model(), err, time.Since(start))
	return out, err
}
