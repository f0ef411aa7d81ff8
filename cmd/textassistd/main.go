// textassistd - Floating text assistant daemon
//
// textassistd follows the focused text field through the accessibility bus
// and exports the floating control on the session bus as
// org.textassist.Overlay1. A tap on the control sends the field's selection
// to the configured backend and writes the result back in place.
//
//	textassistd [-config path] [-v]
//
// The configuration file is watched and re-read on SIGHUP; provider changes
// apply to the next gesture without a restart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"textassist/internal/atspi"
	"textassist/internal/bridge"
	"textassist/internal/config"
	"textassist/internal/dbusui"
	"textassist/internal/focus"
	"textassist/internal/logging"
	"textassist/internal/mutator"
	"textassist/internal/overlay"
	"textassist/internal/prompt"
	"textassist/internal/security"
	"textassist/internal/settings"
	"textassist/internal/surface"
	"textassist/internal/telemetry"
	"textassist/internal/uiloop"
)

func main() {
	configPath := flag.String("config", "", "configuration file (default: "+config.ConfigPath()+")")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if err := run(*configPath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "textassistd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, verbose bool) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logCfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	if verbose {
		logCfg.Level = logging.LevelDebug
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)
	logger := log.Logger

	lock, err := security.AcquireInstanceLock(filepath.Join(config.PlatformRuntimeDir(), "textassistd.lock"))
	if errors.Is(err, security.ErrLocked) {
		return errors.New("another textassistd is already running")
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	tel, err := telemetry.Setup(cfg.Telemetry, os.Stderr)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	store, err := settings.Open(cfg.Settings.Path, cfg.Settings.KeyPath)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	providers := bridge.NewProviders(store, nil, logger)
	if err := providers.Configure(cfg.Provider); err != nil {
		return fmt.Errorf("configure provider: %w", err)
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer session.Close()

	host, listener := openHost(cfg.Host, logger)
	if listener != nil {
		defer listener.Close()
	}

	defaultAction, err := prompt.ParseAction(cfg.Overlay.DefaultAction)
	if err != nil {
		return fmt.Errorf("overlay.default_action: %w", err)
	}

	loop := uiloop.New(logger)
	notifier := dbusui.NewDesktopNotifier(session, "Text Assistant", logger)
	renderer := dbusui.NewRenderer(session, notifier, logger)
	tracker := focus.New(host, focus.Config{IgnoredApplications: cfg.Host.IgnoredApplications}, logger)
	ctrl, err := overlay.New(overlay.Options{
		Scheduler:     loop,
		Renderer:      renderer,
		Tracker:       tracker,
		Mutator:       mutator.New(logger),
		Providers:     providers.Current,
		Preferences:   bridge.Preferences(store, logger),
		DefaultAction: defaultAction,
		UndoTimeout:   cfg.Overlay.UndoTimeout(),
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	svc := bridge.New(loop, tracker, ctrl, logger)

	if err := dbusui.Export(session, dbusui.NewService(loop, ctrl, renderer, logger)); err != nil {
		if errors.Is(err, dbusui.ErrAlreadyRunning) {
			return errors.New("another textassistd owns " + dbusui.BusName)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader.OnChange(func(c *config.Config) {
		if err := providers.Configure(c.Provider); err != nil {
			logger.Warn("provider reload failed, keeping previous backend", "error", err)
			return
		}
		logger.Info("configuration reloaded", "path", loader.Path())
		svc.Refresh()
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
	defer loader.Close()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := loader.Reload(); err != nil {
					logger.Warn("config reload", "error", err)
				}
			case err := <-loader.Errors():
				logger.Warn("config reload", "error", err)
			}
		}
	}()

	if listener != nil {
		go func() {
			err := listener.Listen(ctx, svc)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("accessibility listener stopped", "error", err)
				stop()
			}
		}()
	}
	svc.Refresh()

	name, _ := providers.Current()
	logger.Info("textassistd started",
		"provider", name,
		"host", cfg.Host.Backend,
		"default_action", defaultAction.ID(),
		"settings", cfg.Settings.Path,
	)

	err = loop.Run(ctx)

	// The loop has stopped; nothing else touches the controller now.
	ctrl.Close()
	tracker.Close()
	if werr := loop.Wait(5 * time.Second); werr != nil {
		logger.Warn("in-flight request did not finish", "error", werr)
	}
	notifier.Wait()
	logger.Info("textassistd stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openHost connects the configured accessibility backend. It falls back to
// an empty host when none is available, leaving the overlay hidden.
func openHost(cfg config.HostConfig, logger *slog.Logger) (surface.Host, *atspi.Host) {
	if cfg.Backend == config.BackendNone {
		logger.Info("accessibility host disabled")
		return &surface.MemoryHost{}, nil
	}
	h, err := atspi.Connect(atspi.Config{
		KeyboardAlwaysPresent: cfg.KeyboardAlwaysPresent,
		InputMethodApps:       cfg.InputMethodApps,
	}, logger)
	if err != nil {
		logger.Warn("accessibility bus unavailable, overlay stays hidden", "error", err)
		return &surface.MemoryHost{}, nil
	}
	return h, h
}
