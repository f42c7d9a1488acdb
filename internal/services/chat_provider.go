package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/gemini"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/platform/openai"
)

const (
	ChatProviderOpenAI = "openai"
	ChatProviderGemini = "gemini"
)

// NewChatClient builds the chat collaborator named by provider.
func NewChatClient(ctx context.Context, log *logger.Logger, provider string) (strategy.ChatClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ChatProviderOpenAI:
		return openai.NewClient(log, openai.LoadConfig())
	case ChatProviderGemini:
		return gemini.NewClient(ctx, log, gemini.LoadConfig())
	default:
		return nil, fmt.Errorf("unknown chat provider %q", provider)
	}
}
