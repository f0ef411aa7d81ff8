package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"textassist/internal/config"
	"textassist/internal/prompt"
)

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	cfg    config.VariantConfig
	creds  Credentials
	logger *slog.Logger
}

// NewOpenAI creates the OpenAI backend.
func NewOpenAI(cfg config.VariantConfig, creds Credentials, logger *slog.Logger) (*OpenAI, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{cfg: cfg, creds: creds, logger: logger}, nil
}

// Process implements Provider.
func (o *OpenAI) Process(ctx context.Context, req prompt.Request) (string, error) {
	key, err := apiKey(o.creds, OpenAICredentialKey)
	if err != nil {
		return "", err
	}

	// The key is only known per call, so the client is too.
	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(o.cfg.BaseURL),
		option.WithMaxRetries(0),
	)

	if timeout := o.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(o.cfg.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt()))

	params := openai.ChatCompletionNewParams{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: openai.Float(o.cfg.Temperature),
	}
	if o.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", malformed(errors.New("response has no choices"))
	}
	return finish(completion.Choices[0].Message.Content)
}

func (o *OpenAI) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		o.logger.Debug("openai rejected request", "status", apiErr.StatusCode)
		return rejected(apiErr.StatusCode, err)
	}
	if isTransport(err) {
		o.logger.Debug("openai request failed", "error", err)
		return transport(err)
	}
	return malformed(err)
}
