package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/yungbote/contentplan-backend/internal/platform/envutil"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	JSONMode    bool
}

func LoadConfig() Config {
	return Config{
		APIKey:      envutil.String("GEMINI_API_KEY", ""),
		Model:       envutil.String("GEMINI_MODEL", "gemini-2.5-flash"),
		Temperature: 0.7,
		JSONMode:    envutil.Bool("GEMINI_JSON_MODE", true),
	}
}

// Client is a chat collaborator backed by the Gemini API.
type Client struct {
	log    *logger.Logger
	cfg    Config
	client *genai.Client
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{
		log:    log.With("service", "GeminiClient"),
		cfg:    cfg,
		client: c,
	}, nil
}

func (c *Client) Provider() string { return "gemini" }
func (c *Client) Model() string    { return c.cfg.Model }

func (c *Client) Chat(ctx context.Context, system string, user string) (string, error) {
	temp := c.cfg.Temperature
	conf := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
	}
	if c.cfg.JSONMode {
		conf.ResponseMIMEType = "application/json"
	}
	resp, err := c.client.Models.GenerateContent(ctx,
		c.cfg.Model,
		[]*genai.Content{genai.NewContentFromText(user, genai.RoleUser)},
		conf,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}
