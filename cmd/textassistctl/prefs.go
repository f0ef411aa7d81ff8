package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"textassist/internal/prompt"
)

func newPrefsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change the tone and custom instruction",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := store.Preferences()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tone:               %s\n", p.Tone.Label())
			fmt.Fprintf(cmd.OutOrStdout(), "custom instruction: %s\n", p.CustomInstruction)
			return nil
		},
	})

	var tone, custom string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change preferences; unspecified flags keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := store.Preferences()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tone") {
				if p.Tone, err = prompt.ParseTone(tone); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("custom") {
				p.CustomInstruction = custom
			}
			if err := store.SetPreferences(p); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Preferences saved")
			return nil
		},
	}
	set.Flags().StringVar(&tone, "tone", "", "tone id, or \"none\"")
	set.Flags().StringVar(&custom, "custom", "", "custom instruction for the Custom Instruction action")
	cmd.AddCommand(set)
	return cmd
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List actions in menu order and the available tones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tACTION\tLABEL")
			for i, a := range prompt.Actions() {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i, a.ID(), a.Label())
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "TONE\tLABEL\t")
			for _, t := range prompt.Tones() {
				fmt.Fprintf(tw, "%s\t%s\t\n", t.ID(), t.Label())
			}
			return tw.Flush()
		},
	}
}
