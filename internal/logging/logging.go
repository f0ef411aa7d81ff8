// Package logging builds the slog loggers used by textassistd and
// textassistctl.
//
// Handlers never write credentials or user text. Attributes whose key looks
// like a credential are replaced with RedactedValue, and string attributes
// named text, prompt, result, selection, before or after are logged as their
// rune count under "<key>_runes".
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"textassist/internal/config"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config is the resolved logging setup. See config.LoggingConfig for the
// file form.
type Config struct {
	Level  Level
	Format Format
	// Output is "stdout", "stderr", "file" or "both" (stderr and file).
	Output string

	FilePath   string
	MaxSize    int64 // megabytes
	MaxBackups int
	Compress   bool

	// Component is attached to every record when non-empty.
	Component string
	// Writer overrides Output. Tests use it.
	Writer io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		MaxSize:    10,
		MaxBackups: 3,
		Compress:   true,
		Component:  "textassist",
	}
}

// FromConfig converts the file configuration section.
func FromConfig(c config.LoggingConfig) (*Config, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format := FormatText
	if strings.EqualFold(c.Format, "json") {
		format = FormatJSON
	}
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = c.Output
	cfg.FilePath = c.FilePath
	cfg.MaxSize = int64(c.MaxSizeMB)
	cfg.MaxBackups = c.MaxBackups
	cfg.Compress = c.Compress
	return cfg, nil
}

// Logger is a slog.Logger that owns its output file, if any.
type Logger struct {
	*slog.Logger
	rotator *FileRotator
	mu      sync.Mutex
}

// SetDefault installs l as slog's default logger.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// New creates a Logger for cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w, rotator, err := openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup log output: %w", err)
	}
	return &Logger{Logger: slog.New(newHandler(w, cfg)), rotator: rotator}, nil
}

func newHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.Level, ReplaceAttr: scrub}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return h
}

func openOutput(cfg *Config) (io.Writer, *FileRotator, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil, nil
	}
	output := strings.ToLower(cfg.Output)
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "file", "both":
		rotator, err := NewFileRotator(cfg)
		if err != nil {
			return nil, nil, err
		}
		if output == "both" {
			return io.MultiWriter(os.Stderr, rotator), rotator, nil
		}
		return rotator, rotator, nil
	}
	return os.Stderr, nil, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	err := l.rotator.Close()
	l.rotator = nil
	return err
}

// RedactedValue replaces credential-like attributes.
const RedactedValue = "[REDACTED]"

var credentialWords = []string{
	"password", "secret", "token", "key", "credential",
	"auth", "bearer", "cookie",
}

// textKeys hold user content. Only their length in runes is logged.
var textKeys = map[string]bool{
	"text": true, "prompt": true, "result": true, "selection": true, "before": true, "after": true,
}

// scrub is the handler's ReplaceAttr. It applies inside groups too.
func scrub(_ []string, a slog.Attr) slog.Attr {
	switch {
	case isCredential(a.Key):
		a.Value = slog.StringValue(RedactedValue)
	case textKeys[strings.ToLower(a.Key)] && a.Value.Kind() == slog.KindString:
		a.Key += "_runes"
		a.Value = slog.IntValue(utf8.RuneCountInString(a.Value.String()))
	}
	return a
}

func isCredential(key string) bool {
	key = strings.ToLower(key)
	for _, w := range credentialWords {
		if strings.Contains(key, w) {
			return true
		}
	}
	return false
}

// ParseLevel parses a level name. The empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}
