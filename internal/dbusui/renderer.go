// Package dbusui renders the overlay as D-Bus signals and accepts user
// gestures as D-Bus method calls.
//
// A shell extension or panel applet draws the floating control from the
// signals on org.textassist.Overlay1 and calls back into the same object when
// the user taps, long-presses, picks a menu entry or hits undo. Transient
// messages go through the desktop notification service.
package dbusui

import (
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"textassist/internal/overlay"
)

// Bus names.
const (
	BusName    = "org.textassist.Overlay"
	ObjectPath = dbus.ObjectPath("/org/textassist/Overlay")
	Interface  = "org.textassist.Overlay1"
)

// Signals emitted on Interface.
const (
	SignalControlChanged = Interface + ".ControlChanged"
	SignalMenuShown      = Interface + ".MenuShown"
	SignalLoadingChanged = Interface + ".LoadingChanged"
	SignalUndoChanged    = Interface + ".UndoChanged"
)

// Emitter sends a D-Bus signal. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(summary, body string) error
}

// Renderer implements overlay.Renderer on top of an Emitter.
type Renderer struct {
	emitter  Emitter
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	onSelect func(int)
	entries  int
	onUndo   func()
}

var _ overlay.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer. A nil notifier logs messages instead.
func NewRenderer(emitter Emitter, notifier Notifier, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{emitter: emitter, notifier: notifier, logger: logger.With("component", "dbusui")}
}

func (r *Renderer) emit(name string, values ...interface{}) {
	if err := r.emitter.Emit(ObjectPath, name, values...); err != nil {
		r.logger.Warn("emit signal failed", "signal", name, "error", err)
	}
}

// ShowControl implements overlay.Renderer.
func (r *Renderer) ShowControl() { r.emit(SignalControlChanged, true) }

// HideControl implements overlay.Renderer.
func (r *Renderer) HideControl() { r.emit(SignalControlChanged, false) }

// ShowMenu implements overlay.Renderer.
func (r *Renderer) ShowMenu(entries []overlay.MenuEntry, onSelect func(index int)) {
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}
	r.mu.Lock()
	r.onSelect = onSelect
	r.entries = len(entries)
	r.mu.Unlock()
	r.emit(SignalMenuShown, labels)
}

// HideMenu implements overlay.Renderer.
func (r *Renderer) HideMenu() {
	r.mu.Lock()
	r.onSelect = nil
	r.entries = 0
	r.mu.Unlock()
	r.emit(SignalMenuShown, []string{})
}

// ShowLoading implements overlay.Renderer.
func (r *Renderer) ShowLoading() { r.emit(SignalLoadingChanged, true) }

// HideLoading implements overlay.Renderer.
func (r *Renderer) HideLoading() { r.emit(SignalLoadingChanged, false) }

// ShowUndo implements overlay.Renderer. The controller owns the timeout.
func (r *Renderer) ShowUndo(onUndo func(), timeout time.Duration) {
	r.mu.Lock()
	r.onUndo = onUndo
	r.mu.Unlock()
	r.emit(SignalUndoChanged, true)
}

// HideUndo implements overlay.Renderer.
func (r *Renderer) HideUndo() {
	r.mu.Lock()
	r.onUndo = nil
	r.mu.Unlock()
	r.emit(SignalUndoChanged, false)
}

// Notify implements overlay.Renderer.
func (r *Renderer) Notify(message string) {
	if r.notifier == nil {
		r.logger.Info("notification", "message", message)
		return
	}
	if err := r.notifier.Notify("Text Assistant", message); err != nil {
		r.logger.Warn("notification failed", "message", message, "error", err)
	}
}

// Select delivers a menu choice. It reports false when no menu is shown or
// the index is out of range.
func (r *Renderer) Select(index int) bool {
	r.mu.Lock()
	fn, n := r.onSelect, r.entries
	r.mu.Unlock()
	if fn == nil || index < 0 || index >= n {
		return false
	}
	fn(index)
	return true
}

// PressUndo delivers an undo press. It reports false when the undo
// affordance is not shown.
func (r *Renderer) PressUndo() bool {
	r.mu.Lock()
	fn := r.onUndo
	r.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
