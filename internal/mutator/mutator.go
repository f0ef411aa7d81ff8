// Package mutator writes transformed text back into a host field.
package mutator

import (
	"errors"
	"log/slog"

	"textassist/internal/failure"
	"textassist/internal/surface"
)

// Edit describes a mutation the host accepted.
type Edit struct {
	// Before is the full field text prior to the mutation.
	Before string

	// After is the full field text that was written.
	After string

	// Start and End are the replaced rune range in Before. They cover the
	// whole of Before when Whole is set.
	Start int
	End   int

	// Whole is set when there was no usable selection and the entire field
	// was replaced.
	Whole bool
}

// Mutator issues set-text actions against host fields. It never touches a
// node other than the one it is given.
type Mutator struct {
	logger *slog.Logger
}

// New creates a Mutator.
func New(logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{logger: logger.With("component", "mutator")}
}

// Replace substitutes newText for the node's live selection. Without a
// non-empty in-bounds selection the entire field becomes newText. The write
// is a single set-text action.
//
// A stale node or a refused write yields a failure.MutationRejected error.
func (m *Mutator) Replace(node surface.Node, newText string) (Edit, error) {
	snap, err := m.read(node)
	if err != nil {
		return Edit{}, err
	}

	runes := []rune(snap.Text)
	edit := Edit{Before: snap.Text}

	if start, end, ok := snap.Selection(); ok {
		edit.Start, edit.End = start, end
		edit.After = string(runes[:start]) + newText + string(runes[end:])
	} else {
		edit.Start, edit.End = 0, len(runes)
		edit.After = newText
		edit.Whole = true
	}

	if err := m.write(node, edit.After); err != nil {
		return Edit{}, err
	}
	m.logger.Debug("text replaced",
		"node", node.ID(),
		"whole", edit.Whole,
		"replaced_runes", edit.End-edit.Start,
		"new_runes", len([]rune(newText)),
	)
	return edit, nil
}

// ReplaceAll sets the node's entire content to text regardless of selection.
// Undo uses it to restore Edit.Before.
func (m *Mutator) ReplaceAll(node surface.Node, text string) error {
	if _, err := m.read(node); err != nil {
		return err
	}
	if err := m.write(node, text); err != nil {
		return err
	}
	m.logger.Debug("text restored", "node", node.ID())
	return nil
}

func (m *Mutator) read(node surface.Node) (surface.Snapshot, error) {
	if node == nil {
		return surface.Snapshot{}, failure.New(failure.MutationRejected, "No text field available", surface.ErrNoSurface)
	}
	if !node.Valid() {
		return surface.Snapshot{}, failure.New(failure.MutationRejected, "Text field is no longer available", surface.ErrStale)
	}
	snap, err := node.Snapshot()
	if err != nil {
		return surface.Snapshot{}, failure.New(failure.MutationRejected, "Text field is no longer available", err)
	}
	if !snap.Editable || snap.Secret {
		return surface.Snapshot{}, failure.New(failure.MutationRejected, "Text field cannot be edited", nil)
	}
	return snap, nil
}

func (m *Mutator) write(node surface.Node, text string) error {
	ok, err := node.SetText(text)
	if err != nil {
		msg := "Failed to replace text"
		if errors.Is(err, surface.ErrStale) {
			msg = "Text field is no longer available"
		}
		return failure.New(failure.MutationRejected, msg, err)
	}
	if !ok {
		m.logger.Warn("host refused text mutation", "node", node.ID())
		return failure.New(failure.MutationRejected, "Failed to replace text", nil)
	}
	return nil
}
