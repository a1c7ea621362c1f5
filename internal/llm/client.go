// Package llm wraps the Gemini API for the caption and query services.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"geocapture-desktop/internal/logging"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

// ErrNoKey is returned by New without an API key
var ErrNoKey = errors.New("llm: no API key configured")

// Config configures a Client
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string // overrides the API endpoint, for tests and proxies
	Temperature float32
	MaxTokens   int32
}

// Client sends prompts with optional inline images
type Client struct {
	genai *genai.Client
	cfg   Config
	log   *logrus.Entry
}

// New creates a client
func New(ctx context.Context, cfg Config, log *logrus.Entry) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if log == nil {
		log = logging.Discard()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{genai: client, cfg: cfg, log: log.WithField("model", cfg.Model)}, nil
}

// Image is an inline image part
type Image struct {
	MIMEType string
	Data     []byte
}

// Generate sends the system instruction, images and prompt and returns the
// trimmed response text.
func (c *Client) Generate(ctx context.Context, system, prompt string, images ...Image) (string, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Data,
			},
		})
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = c.cfg.MaxTokens
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.Model, []*genai.Content{{Role: "user", Parts: parts}}, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	c.log.WithField("chars", len(text)).Debug("llm response")
	return text, nil
}
