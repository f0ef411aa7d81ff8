package dbusui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"textassist/internal/overlay"
)

// Errors returned to D-Bus callers.
const (
	ErrorStopped = "org.textassist.Error.Stopped"
	ErrorNoMenu  = "org.textassist.Error.NoMenu"
	ErrorNoUndo  = "org.textassist.Error.NoUndo"
)

// ErrAlreadyRunning is returned by Export when another instance owns BusName.
var ErrAlreadyRunning = errors.New("dbusui: bus name already taken")

// Controller is the part of overlay.Controller the service drives.
type Controller interface {
	Tap()
	LongPress()
	Dismiss()
	State() overlay.State
}

// Loop runs functions on the UI loop.
type Loop interface {
	Post(fn func()) bool
	Call(ctx context.Context, fn func()) error
}

// Service is the exported org.textassist.Overlay1 object. Every gesture is
// posted onto the UI loop; D-Bus handlers never touch controller state.
type Service struct {
	loop     Loop
	ctrl     Controller
	renderer *Renderer
	logger   *slog.Logger
}

// NewService creates the gesture service.
func NewService(loop Loop, ctrl Controller, renderer *Renderer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{loop: loop, ctrl: ctrl, renderer: renderer, logger: logger.With("component", "dbusui")}
}

func (s *Service) post(gesture string, fn func()) *dbus.Error {
	s.logger.Debug("gesture", "gesture", gesture)
	if !s.loop.Post(fn) {
		return dbus.NewError(ErrorStopped, []interface{}{"overlay is shutting down"})
	}
	return nil
}

// Tap runs the default action.
func (s *Service) Tap() *dbus.Error {
	return s.post("tap", s.ctrl.Tap)
}

// LongPress opens the action menu.
func (s *Service) LongPress() *dbus.Error {
	return s.post("long_press", s.ctrl.LongPress)
}

// Choose picks a menu entry.
func (s *Service) Choose(index int32) *dbus.Error {
	s.logger.Debug("gesture", "gesture", "choose", "index", index)
	if !s.renderer.Select(int(index)) {
		return dbus.NewError(ErrorNoMenu, []interface{}{fmt.Sprintf("no menu entry %d", index)})
	}
	return nil
}

// Dismiss closes the menu.
func (s *Service) Dismiss() *dbus.Error {
	return s.post("dismiss", s.ctrl.Dismiss)
}

// Undo reverts the last transformation while the affordance is live.
func (s *Service) Undo() *dbus.Error {
	s.logger.Debug("gesture", "gesture", "undo")
	if !s.renderer.PressUndo() {
		return dbus.NewError(ErrorNoUndo, []interface{}{"nothing to undo"})
	}
	return nil
}

// State returns the overlay state name.
func (s *Service) State() (string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var state overlay.State
	if err := s.loop.Call(ctx, func() { state = s.ctrl.State() }); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return state.String(), nil
}

var signals = []introspect.Signal{
	{Name: "ControlChanged", Args: []introspect.Arg{{Name: "visible", Type: "b"}}},
	{Name: "MenuShown", Args: []introspect.Arg{{Name: "labels", Type: "as"}}},
	{Name: "LoadingChanged", Args: []introspect.Arg{{Name: "loading", Type: "b"}}},
	{Name: "UndoChanged", Args: []introspect.Arg{{Name: "available", Type: "b"}}},
}

// Export claims BusName on conn and exports s with introspection data.
func Export(conn *dbus.Conn, s *Service) error {
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ErrAlreadyRunning
	}

	if err := conn.Export(s, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export overlay: %w", err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspect.Methods(s), Signals: signals},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	s.logger.Info("overlay exported", "bus_name", BusName, "path", ObjectPath)
	return nil
}

// Objects resolves remote D-Bus objects. *dbus.Conn implements it.
type Objects interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// DesktopNotifier posts through org.freedesktop.Notifications, replacing its
// previous message so only one is visible at a time.
//
// Notify never blocks its caller: the controller calls it on the UI loop, and
// a stalled or absent notification daemon would otherwise hold the loop until
// the bus timeout. Messages are sent in order from a background goroutine,
// each bounded by CallTimeout.
type DesktopNotifier struct {
	bus     Objects
	appName string
	expire  time.Duration
	logger  *slog.Logger

	// CallTimeout bounds each Notify round trip.
	CallTimeout time.Duration

	mu     sync.Mutex // serializes sends so replaces_id stays in order
	lastID uint32
	sends  sync.WaitGroup
}

// NewDesktopNotifier creates a notifier on the session bus.
func NewDesktopNotifier(bus Objects, appName string, logger *slog.Logger) *DesktopNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DesktopNotifier{
		bus:         bus,
		appName:     appName,
		expire:      3 * time.Second,
		logger:      logger.With("component", "notifier"),
		CallTimeout: time.Second,
	}
}

// Notify implements Notifier. Delivery errors are logged, not returned.
func (n *DesktopNotifier) Notify(summary, body string) error {
	n.sends.Add(1)
	go func() {
		defer n.sends.Done()
		if err := n.send(summary, body); err != nil {
			n.logger.Warn("desktop notification failed", "error", err)
		}
	}()
	return nil
}

func (n *DesktopNotifier) send(summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.CallTimeout)
	defer cancel()

	obj := n.bus.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	var id uint32
	err := obj.CallWithContext(ctx, "org.freedesktop.Notifications.Notify", 0,
		n.appName, n.lastID, "", summary, body,
		[]string{}, map[string]dbus.Variant{}, int32(n.expire.Milliseconds()),
	).Store(&id)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	n.lastID = id
	return nil
}

// Wait blocks until every queued notification was delivered or timed out.
func (n *DesktopNotifier) Wait() {
	n.sends.Wait()
}
