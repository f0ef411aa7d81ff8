package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"textassist/internal/atspi"
	"textassist/internal/config"
	"textassist/internal/dbusui"
	"textassist/internal/health"
	"textassist/internal/provider"
	"textassist/internal/settings"
)

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	var offline bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and desktop connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := health.NewChecker(timeout)

			cfg, cfgErr := flags.loadConfig()
			checker.Register("config", true, func(ctx context.Context) health.Result {
				if cfgErr != nil {
					return health.Unhealthy("%v", cfgErr)
				}
				return health.Healthy("provider %s", activeProvider(cfg))
			})
			if cfgErr == nil {
				closeStore := registerStoreChecks(checker, cfg)
				defer closeStore()
				if !offline {
					registerBusChecks(checker, cfg)
				}
			}

			results := checker.Run(cmd.Context())
			overall := health.Overall(results)
			printResults(cmd.OutOrStdout(), results, overall)
			if overall == health.StatusUnhealthy {
				return errors.New("one or more critical checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip D-Bus and accessibility checks")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "per-check timeout")
	return cmd
}

func activeProvider(cfg *config.Config) string {
	if cfg.Provider.Name == "" {
		return config.ProviderGemini
	}
	return cfg.Provider.Name
}

// registerStoreChecks opens the store once up front; concurrent first opens
// would race on creating the key file.
func registerStoreChecks(c *health.Checker, cfg *config.Config) func() {
	store, openErr := settings.Open(cfg.Settings.Path, cfg.Settings.KeyPath)
	c.Register("settings", true, func(ctx context.Context) health.Result {
		if openErr != nil {
			return health.Unhealthy("open %s: %v", cfg.Settings.Path, openErr)
		}
		if _, err := store.Preferences(); err != nil {
			return health.Unhealthy("read preferences: %v", err)
		}
		return health.Healthy("%s", cfg.Settings.Path)
	})
	if openErr != nil {
		return func() {}
	}
	c.Register("credential", true, func(ctx context.Context) health.Result {
		name := activeProvider(cfg)
		statuses, err := store.Status(provider.CredentialKey(name))
		if err != nil {
			return health.Unhealthy("%v", err)
		}
		if !statuses[0].Set() {
			return health.Unhealthy("no %s key; run 'textassistctl key set %s'", name, name)
		}
		return health.Healthy("%s key from %s", name, statuses[0].Source)
	})
	return func() { store.Close() }
}

func registerBusChecks(c *health.Checker, cfg *config.Config) {
	c.Register("session-bus", false, func(ctx context.Context) health.Result {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			return health.Unhealthy("%v", err)
		}
		conn.Close()
		return health.Healthy("connected")
	})
	c.Register("accessibility", false, func(ctx context.Context) health.Result {
		if cfg.Host.Backend == config.BackendNone {
			return health.Degraded("host backend disabled")
		}
		host, err := atspi.Connect(atspi.Config{}, nil)
		if err != nil {
			return health.Unhealthy("%v", err)
		}
		defer host.Close()
		windows, err := host.Windows()
		if err != nil {
			return health.Degraded("connected, window query failed: %v", err)
		}
		return health.Healthy("%d window(s)", len(windows))
	})
	c.Register("daemon", false, func(ctx context.Context) health.Result {
		client, err := dbusui.Dial()
		if err != nil {
			return health.Unhealthy("%v", err)
		}
		defer client.Close()
		state, err := client.State(ctx)
		if err != nil {
			return health.Degraded("not running: %v", err)
		}
		return health.Healthy("overlay %s", state)
	})
}

func printResults(w io.Writer, results []health.Result, overall health.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tDETAIL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Status, r.Message)
	}
	tw.Flush()
	fmt.Fprintf(w, "\noverall: %s\n", overall)
}
