package surface

import (
	"sync"
	"unicode/utf8"
)

// MemoryNode is an in-memory Node. It backs tests and the one-shot CLI path,
// where there is no host application to edit.
type MemoryNode struct {
	mu       sync.Mutex
	id       NodeID
	snap     Snapshot
	invalid  bool
	refuse   bool
	setCalls int
}

// NewMemoryNode creates an editable node holding text with no selection.
func NewMemoryNode(id NodeID, text string) *MemoryNode {
	return &MemoryNode{
		id: id,
		snap: Snapshot{
			Editable:       true,
			Text:           text,
			SelectionStart: -1,
			SelectionEnd:   -1,
		},
	}
}

// ID implements Node.
func (n *MemoryNode) ID() NodeID { return n.id }

// Valid implements Node.
func (n *MemoryNode) Valid() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.invalid
}

// Snapshot implements Node.
func (n *MemoryNode) Snapshot() (Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.invalid {
		return Snapshot{}, ErrStale
	}
	return n.snap, nil
}

// SetText implements Node. The selection collapses to a caret after the new text.
func (n *MemoryNode) SetText(text string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setCalls++
	if n.invalid {
		return false, ErrStale
	}
	if n.refuse || !n.snap.Editable {
		return false, nil
	}
	n.snap.Text = text
	caret := utf8.RuneCountInString(text)
	n.snap.SelectionStart = caret
	n.snap.SelectionEnd = caret
	return true, nil
}

// Text returns the current content.
func (n *MemoryNode) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snap.Text
}

// Select sets the selection range.
func (n *MemoryNode) Select(start, end int) *MemoryNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snap.SelectionStart = start
	n.snap.SelectionEnd = end
	return n
}

// SetSecret marks the node as a password-like field.
func (n *MemoryNode) SetSecret(secret bool) *MemoryNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snap.Secret = secret
	return n
}

// SetEditable toggles editability.
func (n *MemoryNode) SetEditable(editable bool) *MemoryNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snap.Editable = editable
	return n
}

// SetApplication records the owning application.
func (n *MemoryNode) SetApplication(app string) *MemoryNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snap.Application = app
	return n
}

// RefuseWrites makes SetText report that the host declined the mutation.
func (n *MemoryNode) RefuseWrites(refuse bool) *MemoryNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refuse = refuse
	return n
}

// Invalidate simulates the host destroying the element.
func (n *MemoryNode) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invalid = true
}

// SetCalls returns how many times SetText was called.
func (n *MemoryNode) SetCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setCalls
}

// MemoryHost is a Host whose answers are set directly.
type MemoryHost struct {
	mu      sync.Mutex
	focused Node
	windows []Window
	err     error
}

// FocusedInput implements Host.
func (h *MemoryHost) FocusedInput() (Node, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return h.focused, nil
}

// Windows implements Host.
func (h *MemoryHost) Windows() ([]Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]Window(nil), h.windows...), nil
}

// Focus sets the node FocusedInput reports.
func (h *MemoryHost) Focus(n Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = n
}

// SetKeyboard adds or removes an input-method window.
func (h *MemoryHost) SetKeyboard(visible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows = []Window{{ID: "app", Kind: WindowApplication}}
	if visible {
		h.windows = append(h.windows, Window{ID: "ime", Kind: WindowInputMethod})
	}
}

// Fail makes every query return err until cleared with nil.
func (h *MemoryHost) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}
