package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader owns the configuration file. It loads it once, then optionally
// follows edits with Watch or explicit Reload calls (textassistd maps SIGHUP
// to Reload). Listeners only ever see validated configurations.
type Loader struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
	errs    chan error
}

// NewLoader creates a loader for path, or for ConfigPath() when path is
// empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path:     path,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
		errs:     make(chan error, 1),
	}
}

// Path returns the configuration file path.
func (l *Loader) Path() string { return l.path }

// Load reads the file, applies environment overrides and validates. It does
// not notify listeners.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the last configuration that loaded successfully.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Reload re-reads the file and notifies listeners. On error the current
// configuration stays in place.
func (l *Loader) Reload() error {
	cfg, err := l.read()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.current = cfg
	listeners := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// OnChange registers fn to run after every successful reload. Listeners run
// on the watcher goroutine or on the goroutine that called Reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Errors delivers reload failures seen while watching. Only the latest
// undelivered error is kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Watch follows the file and reloads it after edits settle. The parent
// directory is watched so editors that write a new file and rename it over
// the old one are seen.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = w
	go l.follow(w)
	return nil
}

func (l *Loader) follow(w *fsnotify.Watcher) {
	name := filepath.Base(l.path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				timer.Reset(l.debounce)
			}
		case <-timer.C:
			if err := l.Reload(); err != nil {
				l.report(fmt.Errorf("reload %s: %w", name, err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) report(err error) {
	select {
	case <-l.errs:
	default:
	}
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.closed.Do(func() {
		close(l.done)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}

type decoder func(data []byte, cfg *Config) error

var decoders = map[string]decoder{
	".toml": func(data []byte, cfg *Config) error {
		_, err := toml.Decode(string(data), cfg)
		return err
	},
	".json": func(data []byte, cfg *Config) error { return json.Unmarshal(data, cfg) },
	".yaml": func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
	".yml":  func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
}

// loadConfigFromFile decodes path over the defaults, choosing the format by
// extension. Unknown extensions try TOML, JSON and YAML in turn. A missing
// file yields the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if dec, ok := decoders[ext]; ok {
		cfg := DefaultConfig()
		if err := dec(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", strings.TrimPrefix(ext, "."), err)
		}
		return cfg, nil
	}
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		cfg := DefaultConfig()
		if decoders[ext](data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, errors.New("parse config: not TOML, JSON or YAML")
}

// LoadOrCreate loads path, writing a default file first if none exists. The
// boolean reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	l := NewLoader(path)
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		if err := SaveConfig(DefaultConfig(), l.path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg, err := l.Load()
		return cfg, true, err
	}
	cfg, err := l.Load()
	return cfg, false, err
}
