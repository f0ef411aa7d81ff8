package overlay

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"textassist/internal/failure"
	"textassist/internal/mutator"
	"textassist/internal/prompt"
	"textassist/internal/provider"
	"textassist/internal/surface"
	"textassist/internal/telemetry"
)

// ProviderSource returns the backend for the next cycle and its name. It is
// consulted once per cycle so configuration reloads take effect on the next
// gesture.
type ProviderSource func() (name string, p provider.Provider)

// Options configures a Controller.
type Options struct {
	Scheduler Scheduler
	Renderer  Renderer
	Tracker   Tracker
	Mutator   Mutator
	Providers ProviderSource

	// Preferences is read when a cycle starts. Nil means no tone and no
	// custom instruction.
	Preferences func() Preferences

	// DefaultAction is issued on tap. Defaults to prompt.FixGrammar.
	DefaultAction prompt.Action

	// UndoTimeout defaults to DefaultUndoTimeout.
	UndoTimeout time.Duration

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Controller owns the overlay state machine. All methods must be called on
// the scheduler's loop.
type Controller struct {
	sched     Scheduler
	renderer  Renderer
	tracker   Tracker
	mutator   Mutator
	providers ProviderSource
	prefs     func() Preferences

	defaultAction prompt.Action
	undoTimeout   time.Duration
	metrics       *telemetry.Metrics
	logger        *slog.Logger

	state State

	// Active cycle. cycle is empty when no request is in flight or shown. A
	// cycle survives the control hiding while Loading; its result is still
	// written to target if target is valid when it arrives.
	cycle    string
	action   prompt.Action
	target   surface.Node
	edit     mutator.Edit
	stopUndo func()
}

// New creates a Controller in the Hidden state.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Scheduler == nil:
		return nil, errors.New("overlay: scheduler is required")
	case opts.Renderer == nil:
		return nil, errors.New("overlay: renderer is required")
	case opts.Tracker == nil:
		return nil, errors.New("overlay: tracker is required")
	case opts.Mutator == nil:
		return nil, errors.New("overlay: mutator is required")
	case opts.Providers == nil:
		return nil, errors.New("overlay: provider source is required")
	}

	c := &Controller{
		sched:         opts.Scheduler,
		renderer:      opts.Renderer,
		tracker:       opts.Tracker,
		mutator:       opts.Mutator,
		providers:     opts.Providers,
		prefs:         opts.Preferences,
		defaultAction: opts.DefaultAction,
		undoTimeout:   opts.UndoTimeout,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if c.prefs == nil {
		c.prefs = func() Preferences { return Preferences{} }
	}
	if c.defaultAction == prompt.Custom {
		c.defaultAction = prompt.FixGrammar
	}
	if c.undoTimeout <= 0 {
		c.undoTimeout = DefaultUndoTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "overlay")
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// SetVisible handles a transition of the tracker's visibility signal.
func (c *Controller) SetVisible(show bool) {
	if show {
		if c.state != Hidden {
			return
		}
		c.renderer.ShowControl()
		if c.cycle != "" {
			c.renderer.ShowLoading()
			c.setState(Loading)
			return
		}
		c.setState(Idle)
		return
	}
	if c.state != Hidden {
		c.reset()
		c.renderer.HideControl()
		c.setState(Hidden)
	}
}

// Tap issues the default action on the current selection. It only has an
// effect in Idle.
func (c *Controller) Tap() {
	if c.state != Idle {
		c.logger.Debug("tap ignored", "state", c.state)
		return
	}
	c.start(c.defaultAction)
}

// LongPress opens the action menu. It only has an effect in Idle.
func (c *Controller) LongPress() {
	if c.state != Idle {
		c.logger.Debug("long press ignored", "state", c.state)
		return
	}
	c.renderer.ShowMenu(Entries(), func(index int) {
		c.sched.Post(func() { c.Choose(index) })
	})
	c.setState(MenuOpen)
}

// Choose selects menu entry index and starts its cycle.
func (c *Controller) Choose(index int) {
	if c.state != MenuOpen {
		c.logger.Debug("menu choice ignored", "state", c.state)
		return
	}
	entries := Entries()
	if index < 0 || index >= len(entries) {
		c.logger.Debug("menu choice out of range", "index", index)
		return
	}
	c.renderer.HideMenu()
	c.setState(Idle)
	c.start(entries[index].Action)
}

// Dismiss closes the menu without a choice.
func (c *Controller) Dismiss() {
	if c.state != MenuOpen {
		return
	}
	c.renderer.HideMenu()
	c.setState(Idle)
}

// Undo restores the field to its text before the last transformation. It
// only has an effect while the undo affordance is live.
func (c *Controller) Undo() {
	if c.state != ResultShown {
		c.logger.Debug("undo ignored", "state", c.state)
		return
	}
	target, before, cycle := c.target, c.edit.Before, c.cycle
	c.retireUndo()
	c.setState(Idle)

	if err := c.mutator.ReplaceAll(target, before); err != nil {
		c.logger.Warn("undo failed", "cycle", cycle, "error", err)
		c.renderer.Notify(failure.UserMessage(err))
		return
	}
	c.metrics.RecordUndo(context.Background())
	c.logger.Info("transformation undone", "cycle", cycle)
}

// Close hides everything and abandons any active cycle.
func (c *Controller) Close() {
	c.SetVisible(false)
	if c.cycle != "" {
		c.metrics.RecordCycleFinished(context.Background(), c.action.ID(), "abandoned")
		c.logger.Info("transformation abandoned", "cycle", c.cycle)
		c.clearCycle()
	}
}

// start captures the selection and target and issues the request. The
// controller is in Idle when it is called.
func (c *Controller) start(action prompt.Action) {
	text, err := c.tracker.SelectedText()
	target := c.tracker.Current()
	if err != nil || text == "" || target == nil {
		ferr := failure.New(failure.NoSelectionAvailable, NoSelectionMessage, err)
		c.metrics.RecordCycleFinished(context.Background(), action.ID(), ferr.Kind.String())
		c.logger.Debug("no selection", "action", action.ID(), "error", err)
		c.renderer.Notify(failure.UserMessage(ferr))
		return
	}

	name, p := c.providers()
	if p == nil {
		c.renderer.Notify("No transformation provider is configured")
		return
	}

	prefs := c.prefs()
	req := prompt.Request{
		Text:              text,
		Action:            action,
		Tone:              prefs.Tone,
		CustomInstruction: prefs.CustomInstruction,
	}

	cycle := uuid.NewString()
	c.cycle = cycle
	c.action = action
	c.target = target
	c.edit = mutator.Edit{}

	c.renderer.ShowLoading()
	c.setState(Loading)
	c.metrics.RecordCycleStarted(context.Background(), action.ID())
	c.logger.Info("transformation started",
		"cycle", cycle,
		"action", action.ID(),
		"tone", req.Tone.ID(),
		"provider", name,
		"node", target.ID(),
		"text_runes", utf8.RuneCountInString(text),
	)

	started := time.Now()
	c.sched.Go(func(ctx context.Context) {
		result, err := p.Process(ctx, req)
		elapsed := time.Since(started)
		c.sched.Post(func() { c.complete(cycle, name, result, err, elapsed) })
	})
}

// complete applies a provider result on the loop. The result of the active
// cycle is written back even if the control was hidden meanwhile; only a
// target that is no longer valid discards it.
func (c *Controller) complete(cycle, name, result string, err error, elapsed time.Duration) {
	ctx := context.Background()
	c.metrics.RecordProviderDone(ctx, name, elapsed)

	if cycle != c.cycle {
		c.logger.Debug("stale result dropped", "cycle", cycle, "state", c.state)
		return
	}

	action, target := c.action, c.target
	hidden := c.state == Hidden
	if !hidden {
		c.renderer.HideLoading()
	}

	if err != nil {
		kind := failure.KindOf(err)
		c.finishCycle()
		c.metrics.RecordCycleFinished(ctx, action.ID(), kind.String())
		c.logger.Warn("transformation failed",
			"cycle", cycle, "kind", kind.String(), "elapsed", elapsed, "error", err)
		c.renderer.Notify(failure.UserMessage(err))
		return
	}

	if hidden && !target.Valid() {
		c.finishCycle()
		c.metrics.RecordCycleFinished(ctx, action.ID(), "abandoned")
		c.logger.Info("result discarded, target gone", "cycle", cycle, "elapsed", elapsed)
		return
	}

	edit, err := c.mutator.Replace(target, result)
	if err != nil {
		c.finishCycle()
		c.metrics.RecordCycleFinished(ctx, action.ID(), failure.KindOf(err).String())
		c.logger.Warn("write back failed", "cycle", cycle, "error", err)
		c.renderer.Notify(failure.UserMessage(err))
		return
	}
	c.metrics.RecordCycleFinished(ctx, action.ID(), "success")
	c.logger.Info("transformation applied",
		"cycle", cycle,
		"elapsed", elapsed,
		"whole", edit.Whole,
		"hidden", hidden,
		"result_runes", utf8.RuneCountInString(result),
	)

	// Without a visible control there is nowhere to offer undo.
	if hidden {
		c.clearCycle()
		return
	}
	c.edit = edit
	c.stopUndo = c.sched.AfterFunc(c.undoTimeout, func() { c.expire(cycle) })
	c.renderer.ShowUndo(func() {
		c.sched.Post(c.Undo)
	}, c.undoTimeout)
	c.setState(ResultShown)
}

// finishCycle forgets the active cycle and returns a visible control to Idle.
func (c *Controller) finishCycle() {
	c.clearCycle()
	if c.state == Loading {
		c.setState(Idle)
	}
}

// expire retires the undo affordance of cycle if it is still live.
func (c *Controller) expire(cycle string) {
	if cycle != c.cycle || c.state != ResultShown {
		return
	}
	c.retireUndo()
	c.setState(Idle)
	c.logger.Debug("undo expired", "cycle", cycle)
}

// retireUndo cancels the timeout, hides the affordance and forgets the
// cycle.
func (c *Controller) retireUndo() {
	if c.stopUndo != nil {
		c.stopUndo()
	}
	c.renderer.HideUndo()
	c.clearCycle()
}

// reset tears down whatever the current state shows, short of the control
// itself.
func (c *Controller) reset() {
	switch c.state {
	case MenuOpen:
		c.renderer.HideMenu()
	case Loading:
		// The request keeps running; complete decides what happens to it.
		c.renderer.HideLoading()
		c.logger.Debug("control hidden while loading", "cycle", c.cycle)
	case ResultShown:
		c.retireUndo()
	}
}

func (c *Controller) clearCycle() {
	c.cycle = ""
	c.target = nil
	c.edit = mutator.Edit{}
	c.stopUndo = nil
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state changed", "from", c.state, "to", s)
	c.state = s
}
