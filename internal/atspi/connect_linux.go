//go:build linux

package atspi

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// Connect resolves the accessibility bus through the session bus and opens a
// private connection to it.
func Connect(cfg Config, logger *slog.Logger) (*Host, error) {
	session, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("atspi: connect session bus: %w", err)
	}
	defer session.Close()

	var addr string
	bus := session.Object("org.a11y.Bus", "/org/a11y/bus")
	if err := bus.Call("org.a11y.Bus.GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("atspi: get accessibility bus address: %w", err)
	}

	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("atspi: connect %s: %w", addr, err)
	}
	return newHost(conn, conn, cfg, logger), nil
}
