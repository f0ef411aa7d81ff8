package provider

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"textassist/internal/config"
	"textassist/internal/prompt"
)

// Anthropic calls the Messages API.
type Anthropic struct {
	cfg    config.VariantConfig
	creds  Credentials
	logger *slog.Logger
}

// NewAnthropic creates the Anthropic backend.
func NewAnthropic(cfg config.VariantConfig, creds Credentials, logger *slog.Logger) (*Anthropic, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Anthropic{cfg: cfg, creds: creds, logger: logger}, nil
}

// Process implements Provider.
func (a *Anthropic) Process(ctx context.Context, req prompt.Request) (string, error) {
	key, err := apiKey(a.creds, AnthropicCredentialKey)
	if err != nil {
		return "", err
	}

	client := anthropic.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(a.cfg.BaseURL),
		option.WithMaxRetries(0),
	)

	if timeout := a.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt())),
		},
		Temperature: anthropic.Float(a.cfg.Temperature),
	}
	if a.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.cfg.SystemPrompt}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", a.classify(err)
	}

	var sb strings.Builder
	found := false
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return "", malformed(errors.New("response has no text content"))
	}
	return finish(sb.String())
}

func (a *Anthropic) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		a.logger.Debug("anthropic rejected request", "status", apiErr.StatusCode)
		return rejected(apiErr.StatusCode, err)
	}
	if isTransport(err) {
		a.logger.Debug("anthropic request failed", "error", err)
		return transport(err)
	}
	return malformed(err)
}
