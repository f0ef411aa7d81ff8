package dbusui

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client calls a running daemon's overlay object.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the session bus.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(BusName, ObjectPath)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	return c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...)
}

// Tap runs the default action.
func (c *Client) Tap(ctx context.Context) error { return c.call(ctx, "Tap").Err }

// LongPress opens the action menu.
func (c *Client) LongPress(ctx context.Context) error { return c.call(ctx, "LongPress").Err }

// Choose picks menu entry index.
func (c *Client) Choose(ctx context.Context, index int) error {
	return c.call(ctx, "Choose", int32(index)).Err
}

// Dismiss closes the menu.
func (c *Client) Dismiss(ctx context.Context) error { return c.call(ctx, "Dismiss").Err }

// Undo reverts the last transformation.
func (c *Client) Undo(ctx context.Context) error { return c.call(ctx, "Undo").Err }

// State returns the overlay state name.
func (c *Client) State(ctx context.Context) (string, error) {
	var state string
	if err := c.call(ctx, "State").Store(&state); err != nil {
		return "", err
	}
	return state, nil
}
