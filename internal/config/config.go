// Package config handles configuration loading, validation, and management for textassist.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Provider names accepted in provider.name.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Host backends accepted in host.backend.
const (
	BackendATSPI = "atspi"
	BackendNone  = "none"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Provider selects and configures the transformation backend.
	Provider ProviderConfig `toml:"provider" json:"provider" yaml:"provider"`

	// Overlay configures the floating control.
	Overlay OverlayConfig `toml:"overlay" json:"overlay" yaml:"overlay"`

	// Host configures the accessibility layer.
	Host HostConfig `toml:"host" json:"host" yaml:"host"`

	// Settings configures the credential and preference store.
	Settings SettingsConfig `toml:"settings" json:"settings" yaml:"settings"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Telemetry configuration.
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry" yaml:"telemetry"`
}

// ProviderConfig selects the active backend.
type ProviderConfig struct {
	// Name is the active backend: "gemini", "openai", or "anthropic".
	Name string `toml:"name" json:"name" yaml:"name"`

	// TimeoutSec overrides every variant's timeout when positive.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	Gemini    VariantConfig `toml:"gemini" json:"gemini" yaml:"gemini"`
	OpenAI    VariantConfig `toml:"openai" json:"openai" yaml:"openai"`
	Anthropic VariantConfig `toml:"anthropic" json:"anthropic" yaml:"anthropic"`
}

// VariantConfig holds one backend's request parameters.
type VariantConfig struct {
	// BaseURL is the API root, without the method path.
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// Model is the backend model name.
	Model string `toml:"model" json:"model" yaml:"model"`

	// Temperature is the sampling temperature.
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`

	// MaxTokens caps the output length.
	MaxTokens int `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`

	// TimeoutSec bounds one request.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	// SystemPrompt is sent as the system message by backends that have one.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt" yaml:"system_prompt"`
}

// Timeout returns the request timeout.
func (v VariantConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSec) * time.Second
}

// Active returns the configuration of the selected backend, with the
// provider-wide timeout applied.
func (p ProviderConfig) Active() VariantConfig {
	var v VariantConfig
	switch p.Name {
	case ProviderOpenAI:
		v = p.OpenAI
	case ProviderAnthropic:
		v = p.Anthropic
	default:
		v = p.Gemini
	}
	if p.TimeoutSec > 0 {
		v.TimeoutSec = p.TimeoutSec
	}
	return v
}

// OverlayConfig configures the floating control.
type OverlayConfig struct {
	// UndoTimeoutMs is how long the undo affordance stays live.
	UndoTimeoutMs int `toml:"undo_timeout_ms" json:"undo_timeout_ms" yaml:"undo_timeout_ms"`

	// DefaultAction is the action a single tap runs.
	DefaultAction string `toml:"default_action" json:"default_action" yaml:"default_action"`
}

// UndoTimeout returns the undo window.
func (o OverlayConfig) UndoTimeout() time.Duration {
	return time.Duration(o.UndoTimeoutMs) * time.Millisecond
}

// HostConfig configures the accessibility layer.
type HostConfig struct {
	// Backend is "atspi" or "none".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// KeyboardAlwaysPresent treats a physical keyboard as always visible.
	KeyboardAlwaysPresent bool `toml:"keyboard_always_present" json:"keyboard_always_present" yaml:"keyboard_always_present"`

	// InputMethodApps are applications whose windows count as on-screen keyboards.
	InputMethodApps []string `toml:"input_method_apps" json:"input_method_apps" yaml:"input_method_apps"`

	// IgnoredApplications are never tracked. Leading or trailing * is a wildcard.
	IgnoredApplications []string `toml:"ignored_applications" json:"ignored_applications" yaml:"ignored_applications"`
}

// SettingsConfig configures the settings store.
type SettingsConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// KeyPath is the local secret used to encrypt credentials at rest.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// TelemetryConfig toggles OpenTelemetry output.
type TelemetryConfig struct {
	// Tracing exports spans to stdout.
	Tracing bool `toml:"tracing" json:"tracing" yaml:"tracing"`

	// Metrics records counters and histograms.
	Metrics bool `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// DefaultOpenAISystemPrompt is the system message sent to chat backends.
const DefaultOpenAISystemPrompt = "Follow instructions strictly. Do not add new ideas unless asked. " +
	"Preserve meaning unless rewriting is requested. Respond in the same language as input."

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Provider: ProviderConfig{
			Name: ProviderGemini,
			Gemini: VariantConfig{
				BaseURL:     "https://generativelanguage.googleapis.com",
				Model:       "gemini-pro",
				Temperature: 0.7,
				MaxTokens:   1000,
				TimeoutSec:  30,
			},
			OpenAI: VariantConfig{
				BaseURL:      "https://api.openai.com/v1",
				Model:        "gpt-4o-mini",
				Temperature:  0.7,
				MaxTokens:    1000,
				TimeoutSec:   10,
				SystemPrompt: DefaultOpenAISystemPrompt,
			},
			Anthropic: VariantConfig{
				BaseURL:      "https://api.anthropic.com",
				Model:        "claude-3-5-haiku-latest",
				Temperature:  0.7,
				MaxTokens:    1000,
				TimeoutSec:   30,
				SystemPrompt: DefaultOpenAISystemPrompt,
			},
		},
		Overlay: OverlayConfig{
			UndoTimeoutMs: 5000,
			DefaultAction: "fix_grammar",
		},
		Host: HostConfig{
			Backend:               BackendATSPI,
			KeyboardAlwaysPresent: true,
			InputMethodApps:       []string{"onboard", "squeekboard", "maliit-keyboard"},
			IgnoredApplications:   []string{"keepassxc", "gnome-keyring*", "pinentry*"},
		},
		Settings: SettingsConfig{
			Path:    filepath.Join(dir, "settings.db"),
			KeyPath: filepath.Join(dir, "settings.key"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "textassist.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
		Telemetry: TelemetryConfig{
			Tracing: false,
			Metrics: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base data directory.
// TEXTASSIST_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("TEXTASSIST_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Settings.Path),
		filepath.Dir(c.Settings.KeyPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with TEXTASSIST_ and use underscores.
// API keys are not configuration; the settings store reads those.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TEXTASSIST_PROVIDER"); v != "" {
		c.Provider.Name = strings.ToLower(v)
	}
	if v := os.Getenv("TEXTASSIST_GEMINI_BASE_URL"); v != "" {
		c.Provider.Gemini.BaseURL = v
	}
	if v := os.Getenv("TEXTASSIST_OPENAI_BASE_URL"); v != "" {
		c.Provider.OpenAI.BaseURL = v
	}
	if v := os.Getenv("TEXTASSIST_ANTHROPIC_BASE_URL"); v != "" {
		c.Provider.Anthropic.BaseURL = v
	}

	if v := os.Getenv("TEXTASSIST_SETTINGS_PATH"); v != "" {
		c.Settings.Path = v
	}
	if v := os.Getenv("TEXTASSIST_SETTINGS_KEY_PATH"); v != "" {
		c.Settings.KeyPath = v
	}

	if v := os.Getenv("TEXTASSIST_HOST_BACKEND"); v != "" {
		c.Host.Backend = v
	}

	if v := os.Getenv("TEXTASSIST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TEXTASSIST_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Host.InputMethodApps = append([]string{}, c.Host.InputMethodApps...)
	clone.Host.IgnoredApplications = append([]string{}, c.Host.IgnoredApplications...)
	return &clone
}

// SaveConfig writes the configuration, choosing the format from the file
// extension. Unknown extensions are written as TOML.
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		buf.WriteString("# textassist configuration\n\n")
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write with secure permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
