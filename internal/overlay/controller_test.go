package overlay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"textassist/internal/failure"
	"textassist/internal/focus"
	"textassist/internal/mutator"
	"textassist/internal/prompt"
	"textassist/internal/provider"
	"textassist/internal/surface"
	"textassist/internal/telemetry"
	"textassist/internal/uiloop"
)

type fakeRenderer struct {
	calls    []string
	notices  []string
	entries  []MenuEntry
	onSelect func(int)
	onUndo   func()
	timeout  time.Duration
}

func (r *fakeRenderer) ShowControl() { r.calls = append(r.calls, "show_control") }
func (r *fakeRenderer) HideControl() { r.calls = append(r.calls, "hide_control") }
func (r *fakeRenderer) ShowMenu(entries []MenuEntry, onSelect func(int)) {
	r.calls = append(r.calls, "show_menu")
	r.entries, r.onSelect = entries, onSelect
}
func (r *fakeRenderer) HideMenu()    { r.calls = append(r.calls, "hide_menu") }
func (r *fakeRenderer) ShowLoading() { r.calls = append(r.calls, "show_loading") }
func (r *fakeRenderer) HideLoading() { r.calls = append(r.calls, "hide_loading") }
func (r *fakeRenderer) ShowUndo(onUndo func(), timeout time.Duration) {
	r.calls = append(r.calls, "show_undo")
	r.onUndo, r.timeout = onUndo, timeout
}
func (r *fakeRenderer) HideUndo()         { r.calls = append(r.calls, "hide_undo") }
func (r *fakeRenderer) Notify(msg string) { r.notices = append(r.notices, msg) }

func (r *fakeRenderer) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type scriptedProvider struct {
	mu       sync.Mutex
	result   string
	err      error
	requests []prompt.Request
}

func (p *scriptedProvider) Process(_ context.Context, req prompt.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.result, p.err
}

// outcomeMeter records the outcome attribute of every finished cycle.
type outcomeMeter struct {
	noop.Meter
	mu       *sync.Mutex
	outcomes *[]string
}

func (m outcomeMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return outcomeCounter{name: name, meter: m}, nil
}

type outcomeCounter struct {
	noop.Int64Counter
	name  string
	meter outcomeMeter
}

func (c outcomeCounter) Add(_ context.Context, _ int64, opts ...metric.AddOption) {
	if c.name != "textassist.cycles.finished" {
		return
	}
	attrs := metric.NewAddConfig(opts).Attributes()
	outcome, _ := attrs.Value("outcome")
	c.meter.mu.Lock()
	defer c.meter.mu.Unlock()
	*c.meter.outcomes = append(*c.meter.outcomes, outcome.AsString())
}

type harness struct {
	sched    *uiloop.Manual
	host     *surface.MemoryHost
	node     *surface.MemoryNode
	tracker  *focus.Tracker
	renderer *fakeRenderer
	provider *scriptedProvider
	prefs    Preferences
	ctrl     *Controller

	mu       sync.Mutex
	outcomes []string
}

func (h *harness) finished() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.outcomes...)
}

func newHarness(t *testing.T, text string) *harness {
	t.Helper()
	h := &harness{
		sched:    uiloop.NewManual(),
		host:     &surface.MemoryHost{},
		node:     surface.NewMemoryNode("field-1", text),
		renderer: &fakeRenderer{},
		provider: &scriptedProvider{},
	}
	h.tracker = focus.New(h.host, focus.DefaultConfig(), nil)
	metrics, err := telemetry.NewMetricsFrom(outcomeMeter{mu: &h.mu, outcomes: &h.outcomes})
	require.NoError(t, err)

	ctrl, err := New(Options{
		Scheduler: h.sched,
		Renderer:  h.renderer,
		Tracker:   h.tracker,
		Mutator:   mutator.New(nil),
		Providers: func() (string, provider.Provider) {
			return "scripted", h.provider
		},
		Preferences: func() Preferences { return h.prefs },
		Metrics:     metrics,
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	h.tracker.OnVisibility(ctrl.SetVisible)

	h.host.Focus(h.node)
	h.host.SetKeyboard(true)
	h.tracker.OnWindowEvent()
	require.Equal(t, Idle, ctrl.State())
	return h
}

func (h *harness) hideKeyboard() {
	h.host.SetKeyboard(false)
	h.tracker.OnWindowEvent()
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestVisibilityTransitions(t *testing.T) {
	h := newHarness(t, "text")
	assert.Equal(t, []string{"show_control"}, h.renderer.calls)

	h.ctrl.SetVisible(true)
	assert.Equal(t, 1, h.renderer.count("show_control"))

	h.hideKeyboard()
	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_control"))

	h.ctrl.SetVisible(false)
	assert.Equal(t, 1, h.renderer.count("hide_control"))
}

func TestGrammarScenarioWithUndo(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	assert.Equal(t, Loading, h.ctrl.State())
	assert.Equal(t, 1, h.sched.PendingTasks())

	h.sched.RunTasks()
	assert.Equal(t, ResultShown, h.ctrl.State())
	assert.Equal(t, "hello world", h.node.Text())

	require.Len(t, h.provider.requests, 1)
	req := h.provider.requests[0]
	assert.Equal(t, prompt.FixGrammar, req.Action)
	assert.Equal(t, prompt.ToneNone, req.Tone)
	assert.True(t, strings.HasPrefix(req.Prompt(), prompt.FixGrammar.Template()))
	assert.True(t, strings.HasSuffix(req.Prompt(), "helo wrld"))

	require.NotNil(t, h.renderer.onUndo)
	assert.Equal(t, DefaultUndoTimeout, h.renderer.timeout)

	h.sched.Advance(4 * time.Second)
	h.renderer.onUndo()
	h.sched.Flush()

	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, "helo wrld", h.node.Text())
	assert.Equal(t, 1, h.renderer.count("hide_undo"))
	assert.Equal(t, 0, h.sched.ActiveTimers())
	assert.Empty(t, h.renderer.notices)
}

func TestUndoAfterTimeoutHasNoEffect(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.sched.RunTasks()
	onUndo := h.renderer.onUndo

	h.sched.Advance(DefaultUndoTimeout)
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_undo"))

	onUndo()
	h.sched.Flush()
	h.ctrl.Undo()
	assert.Equal(t, "hello world", h.node.Text())
	assert.Equal(t, 1, h.renderer.count("hide_undo"))
}

func TestSelectionReplaceAndByteExactUndo(t *testing.T) {
	h := newHarness(t, "Hello world")
	h.node.Select(6, 11)
	h.provider.result = "there"

	h.ctrl.Tap()
	h.sched.RunTasks()
	assert.Equal(t, "Hello there", h.node.Text())
	assert.Equal(t, "world", h.provider.requests[0].Text)

	h.ctrl.Undo()
	assert.Equal(t, "Hello world", h.node.Text())
}

func TestMultiByteUndoRestoresExactly(t *testing.T) {
	original := "héllo wörld 👋"
	h := newHarness(t, original)
	h.provider.result = "hello world 👋"

	h.ctrl.Tap()
	h.sched.RunTasks()
	assert.Equal(t, "hello world 👋", h.node.Text())

	h.ctrl.Undo()
	assert.Equal(t, original, h.node.Text())
}

func TestNoSecondLoadingWhileLoading(t *testing.T) {
	h := newHarness(t, "text")
	h.provider.result = "TEXT"

	h.ctrl.Tap()
	h.ctrl.Tap()
	h.ctrl.LongPress()
	h.ctrl.Choose(0)

	assert.Equal(t, Loading, h.ctrl.State())
	assert.Equal(t, 1, h.sched.PendingTasks())
	assert.Equal(t, 1, h.renderer.count("show_loading"))
	assert.Equal(t, 0, h.renderer.count("show_menu"))

	h.sched.RunTasks()
	assert.Len(t, h.provider.requests, 1)
	assert.Equal(t, ResultShown, h.ctrl.State())
}

func TestTapIgnoredWhileResultShown(t *testing.T) {
	h := newHarness(t, "text")
	h.provider.result = "TEXT"

	h.ctrl.Tap()
	h.sched.RunTasks()
	h.ctrl.Tap()
	h.ctrl.LongPress()

	assert.Equal(t, ResultShown, h.ctrl.State())
	assert.Equal(t, 0, h.sched.PendingTasks())
}

func TestFocusMoveDuringLoadingWritesCapturedField(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()

	other := surface.NewMemoryNode("field-2", "other field")
	h.host.Focus(other)
	h.tracker.OnFocusChanged(other)
	require.Same(t, other, h.tracker.Current())

	h.sched.RunTasks()
	assert.Equal(t, "hello world", h.node.Text())
	assert.Equal(t, "other field", other.Text())
	assert.Equal(t, 0, other.SetCalls())

	h.ctrl.Undo()
	assert.Equal(t, "helo wrld", h.node.Text())
	assert.Equal(t, "other field", other.Text())
}

func TestStaleTargetFailsCleanly(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.node.Invalidate()
	h.sched.RunTasks()

	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, []string{"Text field is no longer available"}, h.renderer.notices)
	assert.Equal(t, 0, h.renderer.count("show_undo"))
	assert.Equal(t, 1, h.renderer.count("hide_loading"))
}

func TestHostRefusesWrite(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.node.RefuseWrites(true)
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.sched.RunTasks()

	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, []string{"Failed to replace text"}, h.renderer.notices)
	assert.Equal(t, "helo wrld", h.node.Text())
}

func TestEmptySelectionShowsNotice(t *testing.T) {
	h := newHarness(t, "")

	h.ctrl.Tap()
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, []string{NoSelectionMessage}, h.renderer.notices)
	assert.Equal(t, 0, h.sched.PendingTasks())
	assert.Equal(t, 0, h.renderer.count("show_loading"))
	assert.Equal(t, []string{failure.NoSelectionAvailable.String()}, h.finished())
}

func TestMenuChoiceWithEmptySelection(t *testing.T) {
	h := newHarness(t, "")

	h.ctrl.LongPress()
	h.ctrl.Choose(1)
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_menu"))
	assert.Equal(t, []string{NoSelectionMessage}, h.renderer.notices)
}

func TestProviderFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.err = failure.New(failure.MissingCredential, "API key not found", nil)

	h.ctrl.Tap()
	h.sched.RunTasks()

	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, []string{"API key not found"}, h.renderer.notices)
	assert.Equal(t, "helo wrld", h.node.Text())
	assert.Equal(t, 0, h.node.SetCalls())

	// The overlay stays usable after a failed cycle.
	h.provider.err = nil
	h.provider.result = "hello world"
	h.ctrl.Tap()
	h.sched.RunTasks()
	assert.Equal(t, ResultShown, h.ctrl.State())
}

func TestHideDuringLoadingStillWritesValidTarget(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.hideKeyboard()
	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_loading"))
	require.True(t, h.node.Valid())

	h.sched.RunTasks()
	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, "hello world", h.node.Text())
	assert.Equal(t, 0, h.renderer.count("show_undo"), "no undo without a visible control")
	assert.Equal(t, 0, h.sched.ActiveTimers())
	assert.Equal(t, []string{"success"}, h.finished())

	h.host.SetKeyboard(true)
	h.tracker.OnWindowEvent()
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("show_loading"))
}

func TestHideDuringLoadingDiscardsForGoneTarget(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.hideKeyboard()
	h.node.Invalidate()
	h.sched.RunTasks()

	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, 0, h.node.SetCalls())
	assert.Empty(t, h.renderer.notices)
	assert.Equal(t, []string{"abandoned"}, h.finished())
}

func TestReshowDuringLoadingResumesSpinner(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.hideKeyboard()
	h.host.SetKeyboard(true)
	h.tracker.OnWindowEvent()

	assert.Equal(t, Loading, h.ctrl.State())
	assert.Equal(t, 2, h.renderer.count("show_loading"))
	h.ctrl.Tap()
	assert.Equal(t, 1, h.sched.PendingTasks(), "still one request in flight")

	h.sched.RunTasks()
	assert.Equal(t, ResultShown, h.ctrl.State())
	assert.Equal(t, "hello world", h.node.Text())

	h.ctrl.Undo()
	assert.Equal(t, "helo wrld", h.node.Text())
}

func TestHiddenProviderFailureStillNotifies(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.err = failure.New(failure.TransportFailure, "Network error", nil)

	h.ctrl.Tap()
	h.hideKeyboard()
	h.sched.RunTasks()

	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, []string{"Network error"}, h.renderer.notices)

	h.host.SetKeyboard(true)
	h.tracker.OnWindowEvent()
	assert.Equal(t, Idle, h.ctrl.State())
}

func TestCloseDuringLoadingAbandons(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.ctrl.Close()
	h.sched.RunTasks()

	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, "helo wrld", h.node.Text())
	assert.Equal(t, []string{"abandoned"}, h.finished())
}

func TestHideDuringResultCancelsUndo(t *testing.T) {
	h := newHarness(t, "helo wrld")
	h.provider.result = "hello world"

	h.ctrl.Tap()
	h.sched.RunTasks()
	require.Equal(t, 1, h.sched.ActiveTimers())

	h.hideKeyboard()
	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, 0, h.sched.ActiveTimers())
	assert.Equal(t, 1, h.renderer.count("hide_undo"))

	h.ctrl.Undo()
	assert.Equal(t, "hello world", h.node.Text())
}

func TestMenuFlow(t *testing.T) {
	h := newHarness(t, "bonjour")
	h.prefs = Preferences{Tone: prompt.ToneFormal}
	h.provider.result = "hello"

	h.ctrl.LongPress()
	assert.Equal(t, MenuOpen, h.ctrl.State())
	require.Len(t, h.renderer.entries, len(prompt.Actions()))
	assert.Equal(t, "Fix Grammar", h.renderer.entries[0].Label)

	index := -1
	for i, e := range h.renderer.entries {
		if e.Action == prompt.Translate {
			index = i
		}
	}
	require.GreaterOrEqual(t, index, 0)

	h.renderer.onSelect(index)
	assert.Equal(t, MenuOpen, h.ctrl.State(), "selection is posted to the loop")
	h.sched.Flush()
	assert.Equal(t, Loading, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_menu"))

	h.sched.RunTasks()
	require.Len(t, h.provider.requests, 1)
	assert.Equal(t, prompt.Translate, h.provider.requests[0].Action)
	assert.Equal(t, prompt.ToneFormal, h.provider.requests[0].Tone)
	assert.Equal(t, "hello", h.node.Text())
}

func TestMenuDismissAndOutOfRange(t *testing.T) {
	h := newHarness(t, "text")

	h.ctrl.LongPress()
	h.ctrl.Choose(99)
	assert.Equal(t, MenuOpen, h.ctrl.State())

	h.ctrl.Dismiss()
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_menu"))
	assert.Equal(t, 0, h.sched.PendingTasks())
}

func TestHideWithMenuOpen(t *testing.T) {
	h := newHarness(t, "text")
	h.ctrl.LongPress()
	h.hideKeyboard()

	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, 1, h.renderer.count("hide_menu"))
}

func TestCustomActionUsesPreference(t *testing.T) {
	h := newHarness(t, "text")
	h.prefs = Preferences{CustomInstruction: "Make it rhyme."}
	h.provider.result = "rhymed"

	h.ctrl.LongPress()
	h.ctrl.Choose(int(prompt.Custom) - int(prompt.FixGrammar))
	h.sched.RunTasks()

	require.Len(t, h.provider.requests, 1)
	assert.True(t, strings.HasPrefix(h.provider.requests[0].Prompt(), "Make it rhyme."))
}

func TestNilProviderNotifies(t *testing.T) {
	h := newHarness(t, "text")
	h.ctrl.providers = func() (string, provider.Provider) { return "", nil }

	h.ctrl.Tap()
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Len(t, h.renderer.notices, 1)
}

func TestCustomUndoTimeout(t *testing.T) {
	sched := uiloop.NewManual()
	host := &surface.MemoryHost{}
	node := surface.NewMemoryNode("f", "abc")
	host.Focus(node)
	host.SetKeyboard(true)
	tracker := focus.New(host, focus.DefaultConfig(), nil)
	renderer := &fakeRenderer{}

	ctrl, err := New(Options{
		Scheduler:     sched,
		Renderer:      renderer,
		Tracker:       tracker,
		Mutator:       mutator.New(nil),
		Providers:     func() (string, provider.Provider) { return "p", &scriptedProvider{result: "ABC"} },
		DefaultAction: prompt.Rewrite,
		UndoTimeout:   time.Second,
	})
	require.NoError(t, err)
	tracker.OnVisibility(ctrl.SetVisible)
	tracker.OnWindowEvent()

	ctrl.Tap()
	sched.RunTasks()
	assert.Equal(t, time.Second, renderer.timeout)

	sched.Advance(time.Second)
	assert.Equal(t, Idle, ctrl.State())
	assert.Equal(t, "ABC", node.Text())
}
