// Package atspi adapts the AT-SPI accessibility bus to surface.Host.
//
// Focus, text and window events from every accessible application arrive as
// D-Bus signals on the accessibility bus. Listen forwards them to an Events
// sink; the sink is expected to marshal them onto the UI loop. Nodes are
// looked up lazily over D-Bus and re-validated on every use.
package atspi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"textassist/internal/surface"
)

// AT-SPI D-Bus names.
const (
	RegistryService   = "org.a11y.atspi.Registry"
	RegistryPath      = "/org/a11y/atspi/registry"
	RegistryInterface = "org.a11y.atspi.Registry"
	RootPath          = "/org/a11y/atspi/accessible/root"

	AccessibleInterface   = "org.a11y.atspi.Accessible"
	TextInterface         = "org.a11y.atspi.Text"
	EditableTextInterface = "org.a11y.atspi.EditableText"

	ObjectEventInterface = "org.a11y.atspi.Event.Object"
	WindowEventInterface = "org.a11y.atspi.Event.Window"
)

// Registered event classes.
var registeredEvents = []string{
	"object:state-changed:focused",
	"object:text-changed",
	"object:text-selection-changed",
	"object:text-caret-moved",
	"window:activate",
	"window:deactivate",
}

// ErrUnsupported is returned by Connect where there is no accessibility bus.
var ErrUnsupported = errors.New("atspi: accessibility bus not supported on this platform")

// Events receives host notifications. Methods are called from the listener
// goroutine.
type Events interface {
	// FocusChanged reports a newly focused accessible, or nil when focus
	// left the tracked one without landing elsewhere.
	FocusChanged(node surface.Node)
	// ContentChanged reports a text or selection change anywhere.
	ContentChanged()
	// WindowChanged reports a window activation or deactivation.
	WindowChanged()
}

// Config configures keyboard presence on desktops.
type Config struct {
	// KeyboardAlwaysPresent treats a physical keyboard as a permanently
	// visible input method.
	KeyboardAlwaysPresent bool

	// InputMethodApps are accessible application names of on-screen
	// keyboards. A running one counts as a visible input method.
	InputMethodApps []string
}

// caller is the subset of *dbus.Conn used by Host.
type caller interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// Host is a surface.Host over the accessibility bus.
type Host struct {
	conn   caller
	bus    *dbus.Conn
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	focused *Node
}

func newHost(conn caller, bus *dbus.Conn, cfg Config, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{conn: conn, bus: bus, config: cfg, logger: logger.With("component", "atspi")}
}

// Close closes the bus connection.
func (h *Host) Close() error {
	if h.bus != nil {
		return h.bus.Close()
	}
	return nil
}

// FocusedInput returns the accessible that last reported focus, if it still
// holds it.
func (h *Host) FocusedInput() (surface.Node, error) {
	h.mu.Lock()
	node := h.focused
	h.mu.Unlock()

	if node == nil {
		return nil, nil
	}
	states, err := node.states()
	if err != nil {
		if errors.Is(err, surface.ErrStale) {
			return nil, nil
		}
		return nil, err
	}
	if !states.Has(StateFocused) || states.Has(StateDefunct) {
		return nil, nil
	}
	return node, nil
}

// Windows reports the active application window plus an input-method
// window when a keyboard is considered present.
func (h *Host) Windows() ([]surface.Window, error) {
	windows := []surface.Window{{ID: "desktop", Kind: surface.WindowApplication}}
	if h.config.KeyboardAlwaysPresent {
		return append(windows, surface.Window{ID: "keyboard", Kind: surface.WindowInputMethod}), nil
	}
	if len(h.config.InputMethodApps) == 0 {
		return windows, nil
	}

	apps, err := h.applications()
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		if matchesAny(h.config.InputMethodApps, app) {
			windows = append(windows, surface.Window{ID: app, Kind: surface.WindowInputMethod, Application: app})
		}
	}
	return windows, nil
}

// applications lists the names of registered accessible applications.
func (h *Host) applications() ([]string, error) {
	var children []reference
	root := h.conn.Object(RegistryService, RootPath)
	if err := root.Call(AccessibleInterface+".GetChildren", 0).Store(&children); err != nil {
		return nil, fmt.Errorf("atspi: list applications: %w", err)
	}
	names := make([]string, 0, len(children))
	for _, c := range children {
		name, err := stringProperty(h.conn.Object(c.Name, c.Path), AccessibleInterface+".Name")
		if err != nil {
			h.logger.Debug("application name unavailable", "app", c.Name, "error", err)
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Register asks the registry to deliver the events Listen handles.
func (h *Host) Register() error {
	registry := h.conn.Object(RegistryService, RegistryPath)
	for _, event := range registeredEvents {
		if call := registry.Call(RegistryInterface+".RegisterEvent", 0, event); call.Err != nil {
			return fmt.Errorf("atspi: register %s: %w", event, call.Err)
		}
	}
	return nil
}

// Listen subscribes to accessibility signals and forwards them to events
// until ctx is done.
func (h *Host) Listen(ctx context.Context, events Events) error {
	if h.bus == nil {
		return errors.New("atspi: not connected")
	}
	if err := h.Register(); err != nil {
		h.logger.Warn("event registration failed", "error", err)
	}
	for _, iface := range []string{ObjectEventInterface, WindowEventInterface} {
		if err := h.bus.AddMatchSignal(dbus.WithMatchInterface(iface)); err != nil {
			return fmt.Errorf("atspi: match %s: %w", iface, err)
		}
	}

	signals := make(chan *dbus.Signal, 128)
	h.bus.Signal(signals)
	defer h.bus.RemoveSignal(signals)

	h.logger.Info("listening for accessibility events")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return errors.New("atspi: signal channel closed")
			}
			h.dispatch(sig, events)
		}
	}
}

// dispatch routes one signal.
func (h *Host) dispatch(sig *dbus.Signal, events Events) {
	switch classify(sig) {
	case eventFocusGained:
		node := newNode(h.conn, sig.Sender, sig.Path)
		h.mu.Lock()
		h.focused = node
		h.mu.Unlock()
		events.FocusChanged(node)
	case eventFocusLost:
		h.mu.Lock()
		lost := h.focused != nil && h.focused.dest == sig.Sender && h.focused.path == sig.Path
		if lost {
			h.focused = nil
		}
		h.mu.Unlock()
		if lost {
			events.FocusChanged(nil)
		}
	case eventContent:
		events.ContentChanged()
	case eventWindow:
		events.WindowChanged()
	}
}

type eventKind int

const (
	eventIgnored eventKind = iota
	eventFocusGained
	eventFocusLost
	eventContent
	eventWindow
)

// classify maps an AT-SPI signal to the event it represents.
func classify(sig *dbus.Signal) eventKind {
	dot := strings.LastIndexByte(sig.Name, '.')
	if dot < 0 {
		return eventIgnored
	}
	iface, member := sig.Name[:dot], sig.Name[dot+1:]

	switch iface {
	case ObjectEventInterface:
		switch member {
		case "StateChanged":
			if len(sig.Body) < 2 {
				return eventIgnored
			}
			detail, _ := sig.Body[0].(string)
			gained, _ := sig.Body[1].(int32)
			if detail != "focused" {
				return eventIgnored
			}
			if gained == 1 {
				return eventFocusGained
			}
			return eventFocusLost
		case "TextChanged", "TextSelectionChanged", "TextCaretMoved":
			return eventContent
		}
	case WindowEventInterface:
		switch member {
		case "Activate", "Deactivate":
			return eventWindow
		}
	}
	return eventIgnored
}

// matchesAny reports whether name equals one of patterns, ignoring case.
func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}
