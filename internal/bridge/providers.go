package bridge

import (
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"textassist/internal/config"
	"textassist/internal/overlay"
	"textassist/internal/provider"
	"textassist/internal/settings"
)

// Providers holds the active backend. Configure swaps it; the controller
// picks up the new one on its next cycle.
type Providers struct {
	creds  provider.Credentials
	tp     trace.TracerProvider
	logger *slog.Logger

	mu      sync.RWMutex
	name    string
	current provider.Provider
}

// NewProviders creates an empty holder. tp may be nil for the global tracer
// provider.
func NewProviders(creds provider.Credentials, tp trace.TracerProvider, logger *slog.Logger) *Providers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Providers{creds: creds, tp: tp, logger: logger}
}

// Configure builds the backend named by cfg and makes it current. On error
// the previous backend stays in place.
func (p *Providers) Configure(cfg config.ProviderConfig) error {
	prov, err := provider.New(cfg, p.creds, p.logger)
	if err != nil {
		return err
	}
	name := cfg.Name
	if name == "" {
		name = config.ProviderGemini
	}

	p.mu.Lock()
	p.name, p.current = name, provider.Traced(prov, name, p.tp)
	p.mu.Unlock()

	p.logger.Info("provider configured", "provider", name, "model", cfg.Active().Model)
	return nil
}

// Current implements overlay.ProviderSource.
func (p *Providers) Current() (string, provider.Provider) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name, p.current
}

// PreferenceStore reads stored preferences.
type PreferenceStore interface {
	Preferences() (settings.Preferences, error)
}

// Preferences adapts store to the controller. A read failure is logged and
// yields no tone and no custom instruction.
func Preferences(store PreferenceStore, logger *slog.Logger) func() overlay.Preferences {
	if logger == nil {
		logger = slog.Default()
	}
	return func() overlay.Preferences {
		if store == nil {
			return overlay.Preferences{}
		}
		p, err := store.Preferences()
		if err != nil {
			if !errors.Is(err, settings.ErrNotFound) {
				logger.Warn("read preferences", "error", err)
			}
			return overlay.Preferences{}
		}
		return overlay.Preferences{Tone: p.Tone, CustomInstruction: p.CustomInstruction}
	}
}
