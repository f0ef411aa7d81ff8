// Package bridge connects the host's accessibility events to the focus
// tracker and the overlay controller.
//
// Host events arrive on the host's own goroutine. The Service posts each one
// onto the UI loop, where the tracker and controller live, and subscribes the
// controller to the tracker's visibility transitions.
package bridge

import (
	"log/slog"

	"textassist/internal/focus"
	"textassist/internal/overlay"
	"textassist/internal/surface"
)

// Poster queues work on the UI loop.
type Poster interface {
	Post(fn func()) bool
}

// Service is the process-wide bridge instance. It implements atspi.Events.
type Service struct {
	loop    Poster
	tracker *focus.Tracker
	ctrl    *overlay.Controller
	logger  *slog.Logger
}

// New wires tracker visibility into ctrl. Call it on the loop, or before the
// loop starts.
func New(loop Poster, tracker *focus.Tracker, ctrl *overlay.Controller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	tracker.OnVisibility(ctrl.SetVisible)
	return &Service{loop: loop, tracker: tracker, ctrl: ctrl, logger: logger.With("component", "bridge")}
}

func (s *Service) post(event string, fn func()) {
	if !s.loop.Post(fn) {
		s.logger.Debug("event dropped after shutdown", "event", event)
	}
}

// FocusChanged forwards a focus event.
func (s *Service) FocusChanged(node surface.Node) {
	s.post("focus", func() { s.tracker.OnFocusChanged(node) })
}

// ContentChanged forwards a text or selection change.
func (s *Service) ContentChanged() {
	s.post("content", s.tracker.OnContentOrWindowChanged)
}

// WindowChanged forwards a window event.
func (s *Service) WindowChanged() {
	s.post("window", s.tracker.OnWindowEvent)
}

// Refresh re-evaluates focus and keyboard presence, as after startup or a
// configuration change.
func (s *Service) Refresh() {
	s.post("refresh", s.tracker.OnWindowEvent)
}

// Shutdown hides the overlay and releases the tracked field.
func (s *Service) Shutdown() {
	s.post("shutdown", func() {
		s.ctrl.Close()
		s.tracker.Close()
	})
}
