package atspi

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"textassist/internal/surface"
)

// AT-SPI state bits (AtspiStateType).
const (
	StateDefunct  = 6
	StateEditable = 7
	StateFocused  = 12
)

// RolePasswordText is ATSPI_ROLE_PASSWORD_TEXT.
const RolePasswordText = 40

// StateSet is the 64-bit AT-SPI state bitfield.
type StateSet uint64

// ParseStates decodes the two 32-bit words returned by GetState.
func ParseStates(words []uint32) StateSet {
	var s StateSet
	if len(words) > 0 {
		s |= StateSet(words[0])
	}
	if len(words) > 1 {
		s |= StateSet(words[1]) << 32
	}
	return s
}

// Has reports whether bit is set.
func (s StateSet) Has(bit uint) bool {
	return bit < 64 && s&(1<<bit) != 0
}

// reference is an AT-SPI (so) object reference.
type reference struct {
	Name string
	Path dbus.ObjectPath
}

// Node is a surface.Node for one accessible object.
type Node struct {
	conn caller
	dest string
	path dbus.ObjectPath
}

func newNode(conn caller, dest string, path dbus.ObjectPath) *Node {
	return &Node{conn: conn, dest: dest, path: path}
}

// ID implements surface.Node. Bus name plus object path is unique for the
// lifetime of the accessible.
func (n *Node) ID() surface.NodeID {
	return surface.NodeID(n.dest + string(n.path))
}

// Valid implements surface.Node.
func (n *Node) Valid() bool {
	states, err := n.states()
	return err == nil && !states.Has(StateDefunct)
}

// Snapshot implements surface.Node.
func (n *Node) Snapshot() (surface.Snapshot, error) {
	states, err := n.states()
	if err != nil {
		return surface.Snapshot{}, err
	}
	if states.Has(StateDefunct) {
		return surface.Snapshot{}, surface.ErrStale
	}

	obj := n.object()
	snap := surface.Snapshot{
		Editable:       states.Has(StateEditable),
		SelectionStart: -1,
		SelectionEnd:   -1,
	}

	var role uint32
	if err := obj.Call(AccessibleInterface+".GetRole", 0).Store(&role); err != nil {
		return surface.Snapshot{}, mapError("role", err)
	}
	snap.Secret = role == RolePasswordText

	var app reference
	if err := obj.Call(AccessibleInterface+".GetApplication", 0).Store(&app); err == nil {
		snap.Application, _ = stringProperty(n.conn.Object(app.Name, app.Path), AccessibleInterface+".Name")
	}

	// Objects without the Text interface are not text fields.
	var text string
	if err := obj.Call(TextInterface+".GetText", 0, int32(0), int32(-1)).Store(&text); err != nil {
		if errorName(err) == "org.freedesktop.DBus.Error.UnknownMethod" {
			snap.Editable = false
			return snap, nil
		}
		return surface.Snapshot{}, mapError("text", err)
	}
	snap.Text = text

	var count int32
	if err := obj.Call(TextInterface+".GetNSelections", 0).Store(&count); err != nil {
		return surface.Snapshot{}, mapError("selections", err)
	}
	if count > 0 {
		var start, end int32
		if err := obj.Call(TextInterface+".GetSelection", 0, int32(0)).Store(&start, &end); err != nil {
			return surface.Snapshot{}, mapError("selection", err)
		}
		snap.SelectionStart, snap.SelectionEnd = int(start), int(end)
	}
	return snap, nil
}

// SetText implements surface.Node via EditableText.SetTextContents.
func (n *Node) SetText(text string) (bool, error) {
	var ok bool
	err := n.object().Call(EditableTextInterface+".SetTextContents", 0, text).Store(&ok)
	if err != nil {
		if errorName(err) == "org.freedesktop.DBus.Error.UnknownMethod" {
			return false, nil
		}
		return false, mapError("set text", err)
	}
	return ok, nil
}

func (n *Node) object() dbus.BusObject {
	return n.conn.Object(n.dest, n.path)
}

func (n *Node) states() (StateSet, error) {
	var words []uint32
	if err := n.object().Call(AccessibleInterface+".GetState", 0).Store(&words); err != nil {
		return 0, mapError("state", err)
	}
	return ParseStates(words), nil
}

// stringProperty reads a string D-Bus property.
func stringProperty(obj dbus.BusObject, name string) (string, error) {
	v, err := obj.GetProperty(name)
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("atspi: property %s is %s, not a string", name, v.Signature())
	}
	return s, nil
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var v dbus.Error
	if errors.As(err, &v) {
		return v.Name
	}
	var p *dbus.Error
	if errors.As(err, &p) && p != nil {
		return p.Name
	}
	return ""
}

// mapError converts errors meaning the accessible is gone into surface.ErrStale.
func mapError(op string, err error) error {
	switch errorName(err) {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner":
		return surface.ErrStale
	}
	return fmt.Errorf("atspi: %s: %w", op, err)
}
