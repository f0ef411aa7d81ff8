package provider

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/genai"

	"textassist/internal/config"
	"textassist/internal/prompt"
)

// Gemini calls the generateContent endpoint through the genai client.
type Gemini struct {
	cfg    config.VariantConfig
	creds  Credentials
	logger *slog.Logger
}

// NewGemini creates the Gemini backend.
func NewGemini(cfg config.VariantConfig, creds Credentials, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{cfg: cfg, creds: creds, logger: logger}, nil
}

// Process implements Provider.
func (g *Gemini) Process(ctx context.Context, req prompt.Request) (string, error) {
	key, err := apiKey(g.creds, GeminiCredentialKey)
	if err != nil {
		return "", err
	}

	if timeout := g.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The key is only known per call, so the client is too.
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.cfg.BaseURL},
	})
	if err != nil {
		return "", transport(err)
	}

	resp, err := client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(req.Prompt()), g.generateConfig())
	if err != nil {
		return "", g.classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", malformed(errors.New("response has no candidates"))
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0] == nil {
		return "", malformed(errors.New("candidate has no parts"))
	}
	return finish(parts[0].Text)
}

func (g *Gemini) generateConfig() *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.cfg.Temperature)),
	}
	if g.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}
	if g.cfg.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(g.cfg.SystemPrompt, genai.RoleUser)
	}
	return gc
}

func (g *Gemini) classify(err error) error {
	if code, ok := geminiStatus(err); ok {
		g.logger.Debug("gemini rejected request", "status", code)
		return rejected(code, err)
	}
	if isTransport(err) {
		g.logger.Debug("gemini request failed", "error", err)
		return transport(err)
	}
	return malformed(err)
}

// geminiStatus extracts the HTTP status from a genai API error, which the
// client returns by value or by pointer depending on the call path.
func geminiStatus(err error) (int, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val.Code, true
	}
	return 0, false
}
