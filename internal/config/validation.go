package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"textassist/internal/prompt"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for any validation failure.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && len(e) > 0
}

// Fields returns the names of the failing fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, err := range e {
		out = append(out, err.Field)
	}
	return out
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateProvider(&c.Provider)...)
	errs = append(errs, validateOverlay(&c.Overlay)...)
	errs = append(errs, validateHost(&c.Host)...)
	errs = append(errs, validateSettings(&c.Settings)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateProvider(p *ProviderConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Name {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, ValidationError{
			Field:   "provider.name",
			Message: fmt.Sprintf("unknown provider: %s (valid: gemini, openai, anthropic)", p.Name),
		})
	}

	if p.TimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "provider.timeout_sec",
			Message: "timeout cannot be negative",
		})
	}

	errs = append(errs, validateVariant("provider.gemini", &p.Gemini)...)
	errs = append(errs, validateVariant("provider.openai", &p.OpenAI)...)
	errs = append(errs, validateVariant("provider.anthropic", &p.Anthropic)...)
	return errs
}

func validateVariant(prefix string, v *VariantConfig) ValidationErrors {
	var errs ValidationErrors

	if !isValidURL(v.BaseURL) {
		errs = append(errs, ValidationError{
			Field:   prefix + ".base_url",
			Message: fmt.Sprintf("invalid URL: %q", v.BaseURL),
		})
	}
	if strings.TrimSpace(v.Model) == "" {
		errs = append(errs, *RequiredFieldError(prefix + ".model"))
	}
	if v.Temperature < 0 || v.Temperature > 2 {
		errs = append(errs, *RangeError(prefix+".temperature", 0, 2))
	}
	if v.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".max_tokens",
			Message: "max tokens must be at least 1",
		})
	}
	if v.TimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}
	return errs
}

func validateOverlay(o *OverlayConfig) ValidationErrors {
	var errs ValidationErrors

	if o.UndoTimeoutMs < 500 || o.UndoTimeoutMs > 60000 {
		errs = append(errs, *RangeError("overlay.undo_timeout_ms", 500, 60000))
	}
	action, err := prompt.ParseAction(o.DefaultAction)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "overlay.default_action",
			Message: err.Error(),
		})
	} else if action == prompt.Custom {
		errs = append(errs, ValidationError{
			Field:   "overlay.default_action",
			Message: "custom cannot be the tap action",
		})
	}
	return errs
}

func validateHost(h *HostConfig) ValidationErrors {
	var errs ValidationErrors

	switch h.Backend {
	case BackendATSPI, BackendNone:
	default:
		errs = append(errs, ValidationError{
			Field:   "host.backend",
			Message: fmt.Sprintf("unknown backend: %s (valid: atspi, none)", h.Backend),
		})
	}
	for i, app := range h.IgnoredApplications {
		if strings.TrimSpace(app) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("host.ignored_applications[%d]", i),
				Message: "application cannot be empty",
			})
		}
	}
	return errs
}

func validateSettings(s *SettingsConfig) ValidationErrors {
	var errs ValidationErrors
	if s.Path == "" {
		errs = append(errs, *RequiredFieldError("settings.path"))
	}
	if s.KeyPath == "" {
		errs = append(errs, *RequiredFieldError("settings.key_path"))
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
