// Package overlay drives the floating control: its visibility, the action
// menu, the loading indicator and the undo affordance.
//
// The Controller is a state machine confined to the UI loop:
//
//	Hidden ──show──▶ Idle ──tap──▶ Loading ──ok──▶ ResultShown ──undo/timeout──▶ Idle
//	                  │ ▲                  └─fail─▶ Idle
//	          long-press│ │dismiss
//	                  ▼ │
//	                MenuOpen ──choose──▶ Loading
//
// Hiding the control from any state returns it to Hidden. Provider calls
// run off the loop and their results are posted back; a result whose cycle
// is no longer active is dropped.
package overlay

import (
	"context"
	"fmt"
	"time"

	"textassist/internal/mutator"
	"textassist/internal/prompt"
	"textassist/internal/surface"
)

// State is the visual state of the overlay.
type State int

const (
	Hidden State = iota
	Idle
	MenuOpen
	Loading
	ResultShown
)

var stateNames = [...]string{
	Hidden:      "hidden",
	Idle:        "idle",
	MenuOpen:    "menu_open",
	Loading:     "loading",
	ResultShown: "result_shown",
}

func (s State) String() string {
	if s >= Hidden && s <= ResultShown {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultUndoTimeout is how long the undo affordance stays live.
const DefaultUndoTimeout = 5 * time.Second

// Scheduler serializes work onto the UI loop.
type Scheduler interface {
	// Post queues fn to run on the loop.
	Post(fn func()) bool
	// AfterFunc runs fn on the loop after d unless cancelled first.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// Go runs fn off the loop.
	Go(fn func(ctx context.Context))
}

// MenuEntry is one row of the action menu.
type MenuEntry struct {
	Action prompt.Action
	Label  string
}

// Renderer draws the overlay. Callbacks it is handed may be invoked from
// any goroutine; the controller re-posts them onto the loop.
type Renderer interface {
	ShowControl()
	HideControl()
	ShowMenu(entries []MenuEntry, onSelect func(index int))
	HideMenu()
	ShowLoading()
	HideLoading()
	ShowUndo(onUndo func(), timeout time.Duration)
	HideUndo()
	Notify(message string)
}

// Tracker is the part of focus.Tracker the controller reads.
type Tracker interface {
	Current() surface.Node
	SelectedText() (string, error)
}

// Mutator is the part of mutator.Mutator the controller uses.
type Mutator interface {
	Replace(node surface.Node, newText string) (mutator.Edit, error)
	ReplaceAll(node surface.Node, text string) error
}

// Preferences are the user's tone and custom instruction, applied to every
// request.
type Preferences struct {
	Tone              prompt.Tone
	CustomInstruction string
}

// NoSelectionMessage is shown when a gesture finds no text to transform.
const NoSelectionMessage = "Select some text first"

// Entries returns one menu entry per action.
func Entries() []MenuEntry {
	actions := prompt.Actions()
	entries := make([]MenuEntry, len(actions))
	for i, a := range actions {
		entries[i] = MenuEntry{Action: a, Label: a.Label()}
	}
	return entries
}
