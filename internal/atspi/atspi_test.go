package atspi

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textassist/internal/surface"
)

type fakeObject struct {
	dbus.BusObject

	replies map[string][]interface{}
	props   map[string]interface{}
	gone    bool
	written []string
	refuse  bool
}

func (o *fakeObject) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	if o.gone {
		return &dbus.Call{Err: dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownObject"}}
	}
	if method == EditableTextInterface+".SetTextContents" {
		if o.refuse {
			return &dbus.Call{Body: []interface{}{false}}
		}
		text := args[0].(string)
		o.written = append(o.written, text)
		o.replies[TextInterface+".GetText"] = []interface{}{text}
		return &dbus.Call{Body: []interface{}{true}}
	}
	body, ok := o.replies[method]
	if !ok {
		return &dbus.Call{Err: dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownMethod"}}
	}
	return &dbus.Call{Body: body}
}

func (o *fakeObject) GetProperty(name string) (dbus.Variant, error) {
	v, ok := o.props[name]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return dbus.MakeVariant(v), nil
}

type fakeBus map[string]*fakeObject

func (b fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	if o, ok := b[dest+string(path)]; ok {
		return o
	}
	return &fakeObject{gone: true}
}

func stateWords(bits ...uint) []uint32 {
	var s uint64
	for _, b := range bits {
		s |= 1 << b
	}
	return []uint32{uint32(s), uint32(s >> 32)}
}

func textField(text string, role uint32, bits ...uint) *fakeObject {
	return &fakeObject{replies: map[string][]interface{}{
		AccessibleInterface + ".GetState":       {stateWords(bits...)},
		AccessibleInterface + ".GetRole":        {role},
		AccessibleInterface + ".GetApplication": {reference{Name: ":1.7", Path: "/org/a11y/atspi/accessible/root"}},
		TextInterface + ".GetText":              {text},
		TextInterface + ".GetNSelections":       {int32(0)},
	}}
}

func testBus(field *fakeObject) fakeBus {
	return fakeBus{
		":1.7/org/a11y/atspi/accessible/12": field,
		":1.7/org/a11y/atspi/accessible/root": {
			props: map[string]interface{}{AccessibleInterface + ".Name": "gedit"},
		},
	}
}

type recorder struct {
	focus    []surface.Node
	contents int
	windows  int
}

func (r *recorder) FocusChanged(n surface.Node) { r.focus = append(r.focus, n) }
func (r *recorder) ContentChanged()             { r.contents++ }
func (r *recorder) WindowChanged()              { r.windows++ }

func focusSignal(gained int32) *dbus.Signal {
	return &dbus.Signal{
		Sender: ":1.7",
		Path:   "/org/a11y/atspi/accessible/12",
		Name:   ObjectEventInterface + ".StateChanged",
		Body:   []interface{}{"focused", gained, int32(0), dbus.MakeVariant(int32(0)), map[string]dbus.Variant{}},
	}
}

func TestParseStates(t *testing.T) {
	s := ParseStates(stateWords(StateEditable, StateFocused, 33))
	assert.True(t, s.Has(StateEditable))
	assert.True(t, s.Has(StateFocused))
	assert.True(t, s.Has(33))
	assert.False(t, s.Has(StateDefunct))
	assert.False(t, s.Has(64))
	assert.Equal(t, StateSet(0), ParseStates(nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sig  *dbus.Signal
		want eventKind
	}{
		{"focus gained", focusSignal(1), eventFocusGained},
		{"focus lost", focusSignal(0), eventFocusLost},
		{"other state", &dbus.Signal{Name: ObjectEventInterface + ".StateChanged", Body: []interface{}{"checked", int32(1)}}, eventIgnored},
		{"short body", &dbus.Signal{Name: ObjectEventInterface + ".StateChanged"}, eventIgnored},
		{"text changed", &dbus.Signal{Name: ObjectEventInterface + ".TextChanged"}, eventContent},
		{"selection changed", &dbus.Signal{Name: ObjectEventInterface + ".TextSelectionChanged"}, eventContent},
		{"caret moved", &dbus.Signal{Name: ObjectEventInterface + ".TextCaretMoved"}, eventContent},
		{"window activate", &dbus.Signal{Name: WindowEventInterface + ".Activate"}, eventWindow},
		{"window deactivate", &dbus.Signal{Name: WindowEventInterface + ".Deactivate"}, eventWindow},
		{"unrelated", &dbus.Signal{Name: "org.freedesktop.DBus.NameAcquired"}, eventIgnored},
		{"no dot", &dbus.Signal{Name: "bogus"}, eventIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.sig))
		})
	}
}

func TestNodeSnapshot(t *testing.T) {
	field := textField("Hello world", 61, StateEditable, StateFocused)
	field.replies[TextInterface+".GetNSelections"] = []interface{}{int32(1)}
	field.replies[TextInterface+".GetSelection"] = []interface{}{int32(6), int32(11)}
	node := newNode(testBus(field), ":1.7", "/org/a11y/atspi/accessible/12")

	assert.Equal(t, surface.NodeID(":1.7/org/a11y/atspi/accessible/12"), node.ID())
	assert.True(t, node.Valid())

	snap, err := node.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "gedit", snap.Application)
	assert.True(t, snap.Editable)
	assert.False(t, snap.Secret)
	assert.Equal(t, "Hello world", snap.Text)
	assert.Equal(t, "world", snap.SelectedText())
}

func TestNodeSnapshotPasswordIsSecret(t *testing.T) {
	field := textField("hunter2", RolePasswordText, StateEditable, StateFocused)
	node := newNode(testBus(field), ":1.7", "/org/a11y/atspi/accessible/12")

	snap, err := node.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Secret)
	assert.False(t, snap.Trackable())
	assert.Equal(t, -1, snap.SelectionStart)
}

func TestNodeWithoutTextInterface(t *testing.T) {
	field := textField("", 43, StateFocused)
	delete(field.replies, TextInterface+".GetText")
	node := newNode(testBus(field), ":1.7", "/org/a11y/atspi/accessible/12")

	snap, err := node.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.Editable)
}

func TestNodeStale(t *testing.T) {
	node := newNode(fakeBus{}, ":1.9", "/org/a11y/atspi/accessible/3")
	assert.False(t, node.Valid())

	_, err := node.Snapshot()
	assert.ErrorIs(t, err, surface.ErrStale)

	_, err = node.SetText("x")
	assert.ErrorIs(t, err, surface.ErrStale)
}

func TestNodeDefunctIsStale(t *testing.T) {
	field := textField("x", 61, StateEditable, StateDefunct)
	node := newNode(testBus(field), ":1.7", "/org/a11y/atspi/accessible/12")
	assert.False(t, node.Valid())
	_, err := node.Snapshot()
	assert.ErrorIs(t, err, surface.ErrStale)
}

func TestNodeSetText(t *testing.T) {
	field := textField("teh cat", 61, StateEditable, StateFocused)
	node := newNode(testBus(field), ":1.7", "/org/a11y/atspi/accessible/12")

	ok, err := node.SetText("the cat")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"the cat"}, field.written)

	field.refuse = true
	ok, err = node.SetText("other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatchTracksFocus(t *testing.T) {
	field := textField("Hello", 61, StateEditable, StateFocused)
	host := newHost(testBus(field), nil, Config{}, nil)
	rec := &recorder{}

	got, err := host.FocusedInput()
	require.NoError(t, err)
	assert.Nil(t, got)

	host.dispatch(focusSignal(1), rec)
	require.Len(t, rec.focus, 1)
	assert.Equal(t, surface.NodeID(":1.7/org/a11y/atspi/accessible/12"), rec.focus[0].ID())

	got, err = host.FocusedInput()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.focus[0].ID(), got.ID())

	host.dispatch(&dbus.Signal{Name: ObjectEventInterface + ".TextChanged"}, rec)
	host.dispatch(&dbus.Signal{Name: WindowEventInterface + ".Activate"}, rec)
	assert.Equal(t, 1, rec.contents)
	assert.Equal(t, 1, rec.windows)

	host.dispatch(focusSignal(0), rec)
	require.Len(t, rec.focus, 2)
	assert.Nil(t, rec.focus[1])

	got, err = host.FocusedInput()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBlurOfOtherObjectIgnored(t *testing.T) {
	field := textField("Hello", 61, StateEditable, StateFocused)
	host := newHost(testBus(field), nil, Config{}, nil)
	rec := &recorder{}

	host.dispatch(focusSignal(1), rec)
	other := focusSignal(0)
	other.Path = "/org/a11y/atspi/accessible/99"
	host.dispatch(other, rec)

	assert.Len(t, rec.focus, 1)
}

func TestFocusedInputDropsUnfocused(t *testing.T) {
	field := textField("Hello", 61, StateEditable, StateFocused)
	host := newHost(testBus(field), nil, Config{}, nil)
	host.dispatch(focusSignal(1), &recorder{})

	field.replies[AccessibleInterface+".GetState"] = []interface{}{stateWords(StateEditable)}
	got, err := host.FocusedInput()
	require.NoError(t, err)
	assert.Nil(t, got)

	field.gone = true
	got, err = host.FocusedInput()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWindows(t *testing.T) {
	bus := fakeBus{
		RegistryService + RootPath: {replies: map[string][]interface{}{
			AccessibleInterface + ".GetChildren": {[]reference{
				{Name: ":1.7", Path: "/org/a11y/atspi/accessible/root"},
				{Name: ":1.8", Path: "/org/a11y/atspi/accessible/root"},
			}},
		}},
		":1.7/org/a11y/atspi/accessible/root": {props: map[string]interface{}{AccessibleInterface + ".Name": "gedit"}},
		":1.8/org/a11y/atspi/accessible/root": {props: map[string]interface{}{AccessibleInterface + ".Name": "Onboard"}},
	}

	t.Run("no keyboard configured", func(t *testing.T) {
		windows, err := newHost(bus, nil, Config{}, nil).Windows()
		require.NoError(t, err)
		assert.False(t, surface.HasInputMethod(windows))
	})

	t.Run("always present", func(t *testing.T) {
		windows, err := newHost(bus, nil, Config{KeyboardAlwaysPresent: true}, nil).Windows()
		require.NoError(t, err)
		assert.True(t, surface.HasInputMethod(windows))
	})

	t.Run("on-screen keyboard running", func(t *testing.T) {
		windows, err := newHost(bus, nil, Config{InputMethodApps: []string{"onboard"}}, nil).Windows()
		require.NoError(t, err)
		assert.True(t, surface.HasInputMethod(windows))
	})

	t.Run("on-screen keyboard absent", func(t *testing.T) {
		windows, err := newHost(bus, nil, Config{InputMethodApps: []string{"squeekboard"}}, nil).Windows()
		require.NoError(t, err)
		assert.False(t, surface.HasInputMethod(windows))
	})
}
