// textassistctl - Control the text assistant
//
//	textassistctl key set <provider>      Store an API key (read from stdin)
//	textassistctl key clear <provider>    Delete a stored API key
//	textassistctl key status              Show where each API key comes from
//	textassistctl prefs show|set          Tone and custom instruction
//	textassistctl actions                 List actions and tones
//	textassistctl transform               Transform stdin with the configured backend
//	textassistctl tap|menu|choose|undo    Drive a running daemon's overlay
//	textassistctl doctor                  Diagnose setup problems
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"textassist/internal/config"
	"textassist/internal/settings"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "textassistctl",
		Short:         "Control the text assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "configuration file (default: "+config.ConfigPath()+")")

	cmd.AddCommand(newKeyCmd(flags))
	cmd.AddCommand(newPrefsCmd(flags))
	cmd.AddCommand(newActionsCmd())
	cmd.AddCommand(newTransformCmd(flags))
	cmd.AddCommand(newDoctorCmd(flags))
	for _, c := range newGestureCmds() {
		cmd.AddCommand(c)
	}
	return cmd
}

func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(f.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (f *rootFlags) openStore() (*settings.Store, *config.Config, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := settings.Open(cfg.Settings.Path, cfg.Settings.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open settings: %w", err)
	}
	return store, cfg, nil
}
