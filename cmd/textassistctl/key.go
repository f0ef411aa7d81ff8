package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"textassist/internal/config"
	"textassist/internal/provider"
	"textassist/internal/settings"
)

var providerNames = []string{config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic}

func newKeyCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage provider API keys",
		Long: "API keys are encrypted in the local settings store. A TEXTASSIST_<PROVIDER>_API_KEY\n" +
			"environment variable overrides the stored key.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "set <provider>",
		Short:     "Store an API key read from stdin",
		Args:      cobra.ExactArgs(1),
		ValidArgs: providerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentialKey(args[0])
			if err != nil {
				return err
			}
			value, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty key; use 'key clear' to delete")
			}
			store, _, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetCredential(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "clear <provider>",
		Short:     "Delete a stored API key",
		Args:      cobra.ExactArgs(1),
		ValidArgs: providerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentialKey(args[0])
			if err != nil {
				return err
			}
			store, _, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetCredential(key, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s key\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which API keys are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			keys := make([]string, len(providerNames))
			for i, name := range providerNames {
				keys[i] = provider.CredentialKey(name)
			}
			statuses, err := store.Status(keys...)
			if err != nil {
				return err
			}
			active := cfg.Provider.Name
			if active == "" {
				active = config.ProviderGemini
			}
			printStatus(cmd.OutOrStdout(), active, statuses)
			return nil
		},
	})
	return cmd
}

func credentialKey(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range providerNames {
		if n == name {
			return provider.CredentialKey(name), nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (want one of %s)", name, strings.Join(providerNames, ", "))
}

// readSecret reads the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printStatus(w io.Writer, active string, statuses []settings.CredentialStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tKEY\tSOURCE\tUPDATED")
	for i, st := range statuses {
		name := providerNames[i]
		if name == active {
			name += " (active)"
		}
		state := "missing"
		if st.Set() {
			state = "set"
		}
		updated := "-"
		switch st.Source {
		case settings.SourceStore:
			updated = st.UpdatedAt.Format(time.RFC3339)
		case settings.SourceEnv:
			updated = settings.EnvVar(st.Key)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, state, st.Source, updated)
	}
	tw.Flush()
}
