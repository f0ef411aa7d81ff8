// Package provider implements the remote text-transformation backends.
//
// Every backend sends the same prompt (see package prompt) and honours the
// same contract: Process returns non-empty transformed text or a
// *failure.Error whose Kind says why it could not. Which backend is used is a
// configuration concern; callers only see Provider.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"textassist/internal/config"
	"textassist/internal/failure"
	"textassist/internal/prompt"
)

// Credential keys, as stored by the settings store.
const (
	GeminiCredentialKey    = "gemini_api_key"
	OpenAICredentialKey    = "openai_api_key"
	AnthropicCredentialKey = "anthropic_api_key"
)

// Provider converts a transformation request into transformed text.
//
// Process blocks until the backend answers; callers run it off the UI loop.
// It resolves exactly once, either with non-empty text or with an error.
type Provider interface {
	Process(ctx context.Context, req prompt.Request) (string, error)
}

// Credentials looks up a backend credential by key. An empty value means
// the credential is absent.
type Credentials interface {
	Credential(providerKey string) (string, error)
}

// CredentialFunc adapts a function to Credentials.
type CredentialFunc func(providerKey string) (string, error)

// Credential implements Credentials.
func (f CredentialFunc) Credential(providerKey string) (string, error) {
	return f(providerKey)
}

// StaticCredentials serves credentials from a map.
type StaticCredentials map[string]string

// Credential implements Credentials.
func (s StaticCredentials) Credential(providerKey string) (string, error) {
	return s[providerKey], nil
}

// CredentialKey returns the credential key used by the named backend.
func CredentialKey(name string) string {
	switch name {
	case config.ProviderOpenAI:
		return OpenAICredentialKey
	case config.ProviderAnthropic:
		return AnthropicCredentialKey
	default:
		return GeminiCredentialKey
	}
}

// New builds the backend selected by cfg.Name.
func New(cfg config.ProviderConfig, creds Credentials, logger *slog.Logger) (Provider, error) {
	if creds == nil {
		return nil, errors.New("provider: credentials source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	variant := cfg.Active()
	logger = logger.With("component", "provider", "provider", cfg.Name, "model", variant.Model)

	switch cfg.Name {
	case config.ProviderGemini, "":
		return NewGemini(variant, creds, logger)
	case config.ProviderOpenAI:
		return NewOpenAI(variant, creds, logger)
	case config.ProviderAnthropic:
		return NewAnthropic(variant, creds, logger)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Name)
	}
}

// apiKey resolves the credential for key, reporting MissingCredential when
// it is absent.
func apiKey(creds Credentials, key string) (string, error) {
	value, err := creds.Credential(key)
	if err != nil {
		return "", failure.New(failure.MissingCredential, "API key not found", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", failure.New(failure.MissingCredential, "API key not found", nil)
	}
	return value, nil
}

// finish trims the backend's text and rejects an empty result.
func finish(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", failure.New(failure.EmptyResult, "The assistant returned no text", nil)
	}
	return text, nil
}

func rejected(status int, cause error) error {
	return failure.New(failure.BackendRejected,
		fmt.Sprintf("API error %d: %s", status, http.StatusText(status)), cause)
}

func malformed(cause error) error {
	return failure.New(failure.MalformedResponse, "Unexpected response from the assistant", cause)
}

func transport(cause error) error {
	return failure.New(failure.TransportFailure, "Could not reach the assistant", cause)
}

// isTransport reports whether err came from the connection rather than the
// backend's answer.
func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
