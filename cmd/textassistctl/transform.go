package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"textassist/internal/failure"
	"textassist/internal/logging"
	"textassist/internal/mutator"
	"textassist/internal/prompt"
	"textassist/internal/provider"
	"textassist/internal/surface"
)

type transformFlags struct {
	action    string
	tone      string
	custom    string
	selection string
	backend   string
	verbose   bool
}

func newTransformCmd(flags *rootFlags) *cobra.Command {
	tf := &transformFlags{}
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Transform stdin with the configured backend and print the result",
		Long: "Reads text from stdin, sends it to the backend and prints the field text after the\n" +
			"result is written back. With --select only that rune range is replaced.",
		Example: `  echo "helo wrld" | textassistctl transform
  echo "Hello world" | textassistctl transform --action translate --select 6:11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, flags, tf)
		},
	}
	cmd.Flags().StringVar(&tf.action, "action", prompt.FixGrammar.ID(), "action id (see 'textassistctl actions')")
	cmd.Flags().StringVar(&tf.tone, "tone", "", "tone id; defaults to the stored preference")
	cmd.Flags().StringVar(&tf.custom, "custom", "", "instruction for the custom action; defaults to the stored preference")
	cmd.Flags().StringVar(&tf.selection, "select", "", "replace only runes START:END of the input")
	cmd.Flags().StringVar(&tf.backend, "provider", "", "override provider.name")
	cmd.Flags().BoolVarP(&tf.verbose, "verbose", "v", false, "log the request to stderr")
	return cmd
}

func runTransform(cmd *cobra.Command, flags *rootFlags, tf *transformFlags) error {
	store, cfg, err := flags.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := logging.Discard().Logger
	if tf.verbose {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.LevelDebug
		logCfg.Writer = os.Stderr
		l, err := logging.New(logCfg)
		if err != nil {
			return err
		}
		logger = l.Logger
	}

	if tf.backend != "" {
		cfg.Provider.Name = tf.backend
	}
	p, err := provider.New(cfg.Provider, store, logger)
	if err != nil {
		return err
	}

	action, err := prompt.ParseAction(tf.action)
	if err != nil {
		return err
	}
	prefs, err := store.Preferences()
	if err != nil {
		return err
	}
	req := prompt.Request{Action: action, Tone: prefs.Tone, CustomInstruction: prefs.CustomInstruction}
	if cmd.Flags().Changed("tone") {
		if req.Tone, err = prompt.ParseTone(tf.tone); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("custom") {
		req.CustomInstruction = tf.custom
	}

	input, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	node := surface.NewMemoryNode("stdin", strings.TrimRight(string(input), "\n"))
	if tf.selection != "" {
		start, end, err := parseRange(tf.selection)
		if err != nil {
			return err
		}
		node.Select(start, end)
	}

	snap, err := node.Snapshot()
	if err != nil {
		return err
	}
	req.Text = snap.SelectedText()
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("no text on stdin")
	}

	result, err := p.Process(context.Background(), req)
	if err != nil {
		return fmt.Errorf("%s (%s)", failure.UserMessage(err), failure.KindOf(err))
	}
	if _, err := mutator.New(logger).Replace(node, result); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), node.Text())
	return nil
}

// parseRange parses "START:END".
func parseRange(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("--select: want START:END, got %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("--select start: %w", err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("--select end: %w", err)
	}
	if start < 0 || end < start {
		return 0, 0, fmt.Errorf("--select: invalid range %d:%d", start, end)
	}
	return start, end, nil
}
