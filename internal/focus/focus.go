// Package focus tracks which editable text field currently has input focus.
//
// The Tracker is fed by host notifications that arrive unordered and in
// bursts. It keeps one non-owning reference to the focused field and derives
// a single visibility signal from it:
//
//	shouldShow = keyboardVisible && focusedOnEditable
//
// Subscribers see only transitions of that signal.
//
// A Tracker is confined to one goroutine (the UI loop). None of its methods
// are safe for concurrent use.
package focus

import (
	"errors"
	"fmt"
	"log/slog"

	"textassist/internal/surface"
)

// Config configures the tracker.
type Config struct {
	// IgnoredApplications lists applications whose fields are never tracked.
	// A trailing or leading * matches a prefix or suffix.
	IgnoredApplications []string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{}
}

// Selection is the live text and selection of the tracked field.
type Selection struct {
	Text  string
	Start int
	End   int
}

// Tracker maintains the single authoritative view of the focused field.
type Tracker struct {
	host   surface.Host
	config Config
	logger *slog.Logger

	current           surface.Node
	focusedOnEditable bool
	keyboardVisible   bool
	shouldShow        bool
	closed            bool

	listeners []func(bool)
}

// New creates a tracker over host.
func New(host surface.Host, config Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		host:   host,
		config: config,
		logger: logger.With("component", "focus"),
	}
}

// OnVisibility registers fn to be called with the new value each time
// shouldShow changes.
func (t *Tracker) OnVisibility(fn func(bool)) {
	t.listeners = append(t.listeners, fn)
}

// OnFocusChanged handles a focus event. A nil, non-editable, secret, or
// ignored candidate clears the tracked field. Anything else replaces it.
func (t *Tracker) OnFocusChanged(candidate surface.Node) {
	if t.closed {
		return
	}
	t.reconcile(candidate)
	t.publish()
}

// OnContentOrWindowChanged re-resolves the host's focused input and
// reconciles against it. Content trees can move focus without a focus event.
// Calling it repeatedly with unchanged host state leaves the state unchanged.
func (t *Tracker) OnContentOrWindowChanged() {
	if t.closed {
		return
	}
	if t.resolve() {
		t.publish()
	}
}

// OnKeyboardVisibilityProbe recomputes keyboard presence from the host's
// windows and returns it. A host error keeps the previous value.
func (t *Tracker) OnKeyboardVisibilityProbe() bool {
	if t.closed {
		return false
	}
	t.probeKeyboard()
	t.publish()
	return t.keyboardVisible
}

// OnWindowEvent runs the keyboard probe and the content reconciliation and
// publishes once.
func (t *Tracker) OnWindowEvent() {
	if t.closed {
		return
	}
	t.probeKeyboard()
	t.resolve()
	t.publish()
}

// Current returns the tracked node, or nil.
func (t *Tracker) Current() surface.Node {
	return t.current
}

// FocusedOnEditable reports whether an editable, non-secret field is tracked.
func (t *Tracker) FocusedOnEditable() bool { return t.focusedOnEditable }

// KeyboardVisible reports the last probed keyboard state.
func (t *Tracker) KeyboardVisible() bool { return t.keyboardVisible }

// ShouldShow reports the last published visibility.
func (t *Tracker) ShouldShow() bool { return t.shouldShow }

// CurrentSelection returns the live text and selection of the tracked field.
// It returns surface.ErrNoSurface when nothing is tracked and
// surface.ErrStale when the host has invalidated the field since it was
// tracked. The tracker does not re-resolve on failure.
func (t *Tracker) CurrentSelection() (Selection, error) {
	snap, err := t.snapshot()
	if err != nil {
		return Selection{}, err
	}
	return Selection{Text: snap.Text, Start: snap.SelectionStart, End: snap.SelectionEnd}, nil
}

// SelectedText returns the selected substring when a non-empty in-bounds
// selection exists, and the whole field text otherwise.
func (t *Tracker) SelectedText() (string, error) {
	snap, err := t.snapshot()
	if err != nil {
		return "", err
	}
	return snap.SelectedText(), nil
}

// Close drops the tracked reference. Later events are ignored.
func (t *Tracker) Close() {
	t.closed = true
	t.current = nil
	t.focusedOnEditable = false
	t.keyboardVisible = false
	t.publish()
	t.listeners = nil
}

func (t *Tracker) snapshot() (surface.Snapshot, error) {
	if t.current == nil {
		return surface.Snapshot{}, surface.ErrNoSurface
	}
	if !t.current.Valid() {
		return surface.Snapshot{}, fmt.Errorf("focus: %s: %w", t.current.ID(), surface.ErrStale)
	}
	snap, err := t.current.Snapshot()
	if err != nil {
		return surface.Snapshot{}, fmt.Errorf("focus: %s: %w", t.current.ID(), err)
	}
	// The field may have turned secret after it was tracked.
	if snap.Secret {
		return surface.Snapshot{}, surface.ErrNoSurface
	}
	return snap, nil
}

// resolve asks the host for the focused input and reconciles. It reports
// whether the host answered.
func (t *Tracker) resolve() bool {
	node, err := t.host.FocusedInput()
	if err != nil {
		t.logger.Debug("focused input unavailable", "error", err)
		return false
	}
	t.reconcile(node)
	return true
}

func (t *Tracker) probeKeyboard() {
	windows, err := t.host.Windows()
	if err != nil {
		t.logger.Debug("window list unavailable", "error", err)
		return
	}
	t.keyboardVisible = surface.HasInputMethod(windows)
}

// reconcile applies the tracking rule to candidate and recomputes
// focusedOnEditable from the resulting reference.
func (t *Tracker) reconcile(candidate surface.Node) {
	if !t.accept(candidate) {
		if t.current != nil {
			t.logger.Debug("surface released", "node", t.current.ID())
		}
		t.current = nil
		t.focusedOnEditable = false
		return
	}

	if t.current == nil || t.current.ID() != candidate.ID() {
		t.logger.Debug("surface tracked", "node", candidate.ID())
	}
	t.current = candidate
	t.focusedOnEditable = true
}

func (t *Tracker) accept(candidate surface.Node) bool {
	if candidate == nil || !candidate.Valid() {
		return false
	}
	snap, err := candidate.Snapshot()
	if err != nil {
		if !errors.Is(err, surface.ErrStale) {
			t.logger.Debug("candidate unreadable", "node", candidate.ID(), "error", err)
		}
		return false
	}
	if !snap.Trackable() {
		return false
	}
	for _, pattern := range t.config.IgnoredApplications {
		if matchWildcard(pattern, snap.Application) {
			return false
		}
	}
	return true
}

// publish recomputes shouldShow and notifies listeners when it changed.
func (t *Tracker) publish() {
	show := t.keyboardVisible && t.focusedOnEditable
	if show == t.shouldShow {
		return
	}
	t.shouldShow = show
	t.logger.Debug("overlay visibility changed", "show", show)
	for _, fn := range t.listeners {
		fn(show)
	}
}

// matchWildcard does simple wildcard matching (leading or trailing * only).
func matchWildcard(pattern, s string) bool {
	switch {
	case pattern == "":
		return s == ""
	case pattern == "*":
		return true
	case pattern[0] == '*':
		suffix := pattern[1:]
		return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
	case pattern[len(pattern)-1] == '*':
		prefix := pattern[:len(pattern)-1]
		return len(s) >= len(prefix) && s[:len(prefix)] == prefix
	default:
		return pattern == s
	}
}
