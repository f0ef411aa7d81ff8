// Package surface describes the host-owned editable text fields the assistant
// observes and mutates.
//
// A Node is a non-owning handle: the element it points at lives in the host
// application's content tree and can disappear at any moment. Every operation
// on a Node re-validates against the host and returns ErrStale instead of
// touching an element that no longer exists.
package surface

import (
	"errors"
	"unicode/utf8"
)

var (
	// ErrStale is returned when the host has invalidated a node.
	ErrStale = errors.New("surface: node is no longer valid")

	// ErrNoSurface is returned when no editable surface is tracked.
	ErrNoSurface = errors.New("surface: no editable field focused")
)

// NodeID identifies a host element for as long as the host keeps it alive.
type NodeID string

// Snapshot is the live state of a node at the moment it was read.
// Selection offsets count characters (runes), not bytes. Both are -1 when the
// field reports no selection.
type Snapshot struct {
	Application    string
	Editable       bool
	Secret         bool
	Text           string
	SelectionStart int
	SelectionEnd   int
}

// Trackable reports whether the snapshot may become the tracked surface.
// Secret fields are never tracked.
func (s Snapshot) Trackable() bool {
	return s.Editable && !s.Secret
}

// Selection returns the selected range when it is non-empty and in bounds.
func (s Snapshot) Selection() (start, end int, ok bool) {
	n := utf8.RuneCountInString(s.Text)
	if s.SelectionStart >= 0 && s.SelectionEnd > s.SelectionStart && s.SelectionEnd <= n {
		return s.SelectionStart, s.SelectionEnd, true
	}
	return 0, 0, false
}

// SelectedText returns the selected substring, or the whole text when there is
// no usable selection. Most invocations are a single tap with only a caret in
// the field, so the whole field is the default target.
func (s Snapshot) SelectedText() string {
	start, end, ok := s.Selection()
	if !ok {
		return s.Text
	}
	runes := []rune(s.Text)
	return string(runes[start:end])
}

// Node is a handle to one editable element in a host application.
type Node interface {
	// ID returns the host identity of the element.
	ID() NodeID

	// Valid reports whether the host still has the element.
	Valid() bool

	// Snapshot reads the element's current state. It returns ErrStale if the
	// element has been invalidated.
	Snapshot() (Snapshot, error)

	// SetText replaces the element's entire content in one host action.
	// It returns false when the host refuses programmatic mutation.
	SetText(text string) (bool, error)
}

// WindowKind classifies a host window.
type WindowKind int

const (
	// WindowApplication is a regular application window.
	WindowApplication WindowKind = iota
	// WindowInputMethod is a soft keyboard or input-method panel.
	WindowInputMethod
	// WindowSystem is a system UI window.
	WindowSystem
	// WindowAccessibilityOverlay is an overlay drawn by an accessibility service.
	WindowAccessibilityOverlay
)

func (k WindowKind) String() string {
	switch k {
	case WindowApplication:
		return "application"
	case WindowInputMethod:
		return "input_method"
	case WindowSystem:
		return "system"
	case WindowAccessibilityOverlay:
		return "accessibility_overlay"
	default:
		return "unknown"
	}
}

// Window is one window the host currently reports.
type Window struct {
	ID          string
	Kind        WindowKind
	Application string
}

// HasInputMethod reports whether any window is an input-method window.
func HasInputMethod(windows []Window) bool {
	for _, w := range windows {
		if w.Kind == WindowInputMethod {
			return true
		}
	}
	return false
}

// Host is the accessibility layer the tracker queries.
type Host interface {
	// FocusedInput re-resolves the element that currently holds input focus.
	// It returns (nil, nil) when nothing is focused, and an error when the
	// host cannot answer right now.
	FocusedInput() (Node, error)

	// Windows lists the windows currently on screen.
	Windows() ([]Window, error)
}
