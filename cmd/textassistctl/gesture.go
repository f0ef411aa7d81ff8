package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"textassist/internal/dbusui"
)

const gestureTimeout = 5 * time.Second

// withClient dials the daemon and runs fn with a bounded context.
func withClient(fn func(ctx context.Context, c *dbusui.Client) error) error {
	c, err := dbusui.Dial()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), gestureTimeout)
	defer cancel()
	return fn(ctx, c)
}

func simpleGesture(use, short string, call func(*dbusui.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *dbusui.Client) error {
				return call(c, ctx)
			})
		},
	}
}

func newGestureCmds() []*cobra.Command {
	choose := &cobra.Command{
		Use:   "choose <index>",
		Short: "Pick an entry from the open menu (see 'textassistctl actions')",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			return withClient(func(ctx context.Context, c *dbusui.Client) error {
				return c.Choose(ctx, index)
			})
		},
	}
	state := &cobra.Command{
		Use:   "state",
		Short: "Print the overlay state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *dbusui.Client) error {
				s, err := c.State(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
	return []*cobra.Command{
		simpleGesture("tap", "Run the default action on the focused field", (*dbusui.Client).Tap),
		simpleGesture("menu", "Open the action menu", (*dbusui.Client).LongPress),
		simpleGesture("dismiss", "Close the action menu", (*dbusui.Client).Dismiss),
		simpleGesture("undo", "Undo the last transformation", (*dbusui.Client).Undo),
		choose,
		state,
	}
}
