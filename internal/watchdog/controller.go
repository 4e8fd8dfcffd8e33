// Package watchdog owns the button registration, the periodic job poll and
// the relay, and decides when main power is switched.
//
// All controller state is confined to the goroutine running Run. Edge
// callbacks, poll completions, relay outcomes and reload/quit requests are
// events applied there in arrival order, so none of it is locked.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/printer-watchdog/internal/config"
	"github.com/sweeney/printer-watchdog/internal/gpio"
	"github.com/sweeney/printer-watchdog/internal/logic"
	"github.com/sweeney/printer-watchdog/internal/mqtt"
	"github.com/sweeney/printer-watchdog/internal/octoprint"
	"github.com/sweeney/printer-watchdog/internal/status"
	"github.com/sweeney/printer-watchdog/internal/supervisor"
)

// State is the controller lifecycle state.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateActive        State = "ACTIVE"
	StateReloading     State = "RELOADING"
	// StateFailed means a reload and its rollback both failed: nothing is
	// polled and the button is not registered until the next good reload.
	StateFailed  State = "FAILED"
	StateStopped State = "STOPPED"
)

const (
	// relayTimeout bounds a single relay action.
	relayTimeout = 5 * time.Second

	// eventBuffer is the depth of the loop inbox.
	eventBuffer = 32
)

// Relay switches the printer's main power. Both operations are level-set.
type Relay interface {
	Energize(ctx context.Context) error
	DeEnergize(ctx context.Context) error
	Close() error
}

// Task is a running periodic task.
type Task interface {
	Stop()
}

// Scheduler starts periodic tasks.
type Scheduler interface {
	Start(interval time.Duration, work supervisor.Work) Task
}

// Periodic adapts a supervisor to Scheduler.
func Periodic(s *supervisor.Supervisor) Scheduler {
	return periodic{s}
}

type periodic struct{ s *supervisor.Supervisor }

func (p periodic) Start(interval time.Duration, work supervisor.Work) Task {
	return p.s.Start(interval, work)
}

// Options wires a Controller to its collaborators.
type Options struct {
	// Load produces a fresh configuration snapshot. Called on every reload.
	Load func() (*config.Snapshot, error)

	Button gpio.EdgeSource
	Relay  Relay

	// RelayBackend names the relay implementation for status output.
	RelayBackend string

	// NewPoller builds the job poller for a snapshot. Defaults to an
	// octoprint.Client.
	NewPoller func(*config.Snapshot) octoprint.Poller

	Scheduler Scheduler
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Log       *zap.SugaredLogger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Controller is the watchdog. Create it with New and drive it with Run.
type Controller struct {
	load         func() (*config.Snapshot, error)
	button       gpio.EdgeSource
	relay        Relay
	relayBackend string
	newPoller    func(*config.Snapshot) octoprint.Poller
	sched        Scheduler
	pub          mqtt.Publisher
	tracker      *status.Tracker
	log          *zap.SugaredLogger
	now          func() time.Time

	events chan event
	done   chan struct{}
	state  atomic.Value // State

	// Owned by the loop goroutine.
	snap       *config.Snapshot
	gen        uint64
	task       Task
	registered bool
	channel    int
	activity   *logic.Activity
	counts     logic.Counts
	relayState logic.State
	failures   int

	actions       sync.WaitGroup
	actionCtx     context.Context
	cancelActions context.CancelFunc
}

// New creates a Controller. Run must be called to start it.
func New(opts Options) *Controller {
	c := &Controller{
		load:         opts.Load,
		button:       opts.Button,
		relay:        opts.Relay,
		relayBackend: opts.RelayBackend,
		newPoller:    opts.NewPoller,
		sched:        opts.Scheduler,
		pub:          opts.Publisher,
		tracker:      opts.Tracker,
		log:          opts.Log,
		now:          opts.Now,
		events:       make(chan event, eventBuffer),
		done:         make(chan struct{}),
		activity:     logic.NewActivity(),
	}
	if c.newPoller == nil {
		c.newPoller = func(s *config.Snapshot) octoprint.Poller {
			return octoprint.NewClient(s.BaseURL, s.APIKey, s.RequestTimeout)
		}
	}
	if c.sched == nil {
		c.sched = Periodic(supervisor.New(nil))
	}
	if c.pub == nil {
		c.pub = mqtt.Discard{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.tracker == nil {
		c.tracker = status.NewTracker(c.now(), status.Config{})
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	c.actionCtx, c.cancelActions = context.WithCancel(context.Background())
	c.setState(StateUninitialized)
	return c
}

// State returns the lifecycle state. Safe to call from any goroutine.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

func (c *Controller) setState(s State) {
	c.state.Store(s)
	if c.tracker != nil {
		c.tracker.SetState(string(s))
	}
}

// Run performs the initial reload and then applies events until Quit is
// called or ctx is cancelled. A failed initial reload is returned.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	if err := c.reload("STARTUP"); err != nil {
		c.shutdown("STARTUP_FAILED")
		return err
	}

	for {
		select {
		case ev := <-c.events:
			ev.apply(c)
			if c.State() == StateStopped {
				return nil
			}
		case <-ctx.Done():
			c.shutdown("CONTEXT")
			return nil
		}
	}
}

// Reload loads a new configuration and reinstalls the button registration
// and the periodic task. trigger is recorded in logs and the RELOAD event.
// A configuration error leaves the running setup untouched.
func (c *Controller) Reload(trigger string) error {
	reply := make(chan error, 1)
	select {
	case c.events <- &reloadRequest{trigger: trigger, reply: reply}:
	case <-c.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// Quit stops the periodic task, releases the button registration and
// closes the relay, in that order. Calling it again is a no-op.
func (c *Controller) Quit(trigger string) error {
	reply := make(chan error, 1)
	select {
	case c.events <- &quitRequest{trigger: trigger, reply: reply}:
	case <-c.done:
		return nil
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return nil
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) reload(trigger string) error {
	snap, err := c.load()
	if err != nil {
		c.log.Errorw("reload failed, keeping current configuration", "trigger", trigger, "err", err)
		return err
	}

	prev := c.snap
	c.setState(StateReloading)
	c.teardown()

	if err := c.install(snap); err != nil {
		c.log.Errorw("reload failed", "trigger", trigger, "err", err)
		if prev == nil {
			c.setState(StateFailed)
			return err
		}
		if rerr := c.install(prev); rerr != nil {
			c.log.Errorw("rollback failed, watchdog inactive", "err", rerr)
			c.setState(StateFailed)
			return err
		}
		c.log.Warnw("rolled back to previous configuration", "channel", prev.ButtonChannel)
		c.setState(StateActive)
		return err
	}

	c.setState(StateActive)
	event := "STARTUP"
	if prev != nil {
		c.counts.Reloads++
		event = "RELOAD"
	}
	c.log.Infow("configuration installed",
		"trigger", trigger,
		"channel", snap.ButtonChannel,
		"debounce", snap.Debounce,
		"interval", snap.PollInterval,
		"timeout", snap.Timeout,
		"url", snap.BaseURL,
	)
	c.report()
	c.publishSystem(event, trigger)
	return nil
}

// install registers the button and starts the periodic task for snap.
// Nothing is left installed when it fails.
func (c *Controller) install(snap *config.Snapshot) error {
	c.gen++
	gen := c.gen

	if err := c.button.Register(snap.ButtonChannel, snap.Debounce, func() { c.onPress(gen) }); err != nil {
		return err
	}
	c.registered = true
	c.channel = snap.ButtonChannel

	poller := c.newPoller(snap)
	c.task = c.sched.Start(snap.PollInterval, func(ctx context.Context) {
		c.poll(ctx, gen, poller)
	})
	c.snap = snap
	c.tracker.SetConfig(c.statusConfig(snap))
	return nil
}

// teardown stops the periodic task and releases the registration. Events
// already queued from the old generation are dropped when applied.
func (c *Controller) teardown() {
	if c.task != nil {
		c.task.Stop()
		c.task = nil
	}
	if c.registered {
		if err := c.button.Unregister(c.channel); err != nil {
			c.log.Warnw("unregister failed", "channel", c.channel, "err", err)
		}
		c.registered = false
	}
	c.gen++
}

// shutdown releases everything. Relay actions still in flight get up to
// relayTimeout to finish before the relay is closed.
func (c *Controller) shutdown(trigger string) {
	if c.State() == StateStopped {
		return
	}
	c.log.Infow("shutting down", "trigger", trigger)
	c.teardown()
	if err := c.button.Close(); err != nil {
		c.log.Warnw("closing edge source", "err", err)
	}

	c.drainActions(relayTimeout)
	c.cancelActions()

	if err := c.relay.Close(); err != nil {
		c.log.Warnw("closing relay", "err", err)
	}
	c.setState(StateStopped)
	c.report()
	c.publishSystem("SHUTDOWN", trigger)
}

// drainActions waits for in-flight relay actions, applying their results.
func (c *Controller) drainActions(limit time.Duration) {
	idle := make(chan struct{})
	go func() {
		c.actions.Wait()
		close(idle)
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()
	for {
		select {
		case <-idle:
			c.applyPending()
			return
		case ev := <-c.events:
			if r, ok := ev.(*actionResult); ok {
				r.apply(c)
			}
		case <-timer.C:
			c.log.Warnw("relay actions still running at shutdown")
			return
		}
	}
}

// applyPending applies action results already queued.
func (c *Controller) applyPending() {
	for {
		select {
		case ev := <-c.events:
			if r, ok := ev.(*actionResult); ok {
				r.apply(c)
			}
		default:
			return
		}
	}
}

// onPress is the edge callback. It runs on the edge source's goroutine and
// must not block, so a full inbox drops the press.
func (c *Controller) onPress(gen uint64) {
	select {
	case c.events <- &press{gen: gen, at: c.now()}:
	case <-c.done:
	default:
		c.log.Warnw("event queue full, dropping button press")
	}
}

// poll is the periodic work. It runs on the scheduler's goroutine and hands
// the result to the loop.
func (c *Controller) poll(ctx context.Context, gen uint64, p octoprint.Poller) {
	st, err := p.Poll(ctx)
	c.send(ctx, &pollResult{gen: gen, status: st, err: err})
}

func (c *Controller) send(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	case <-c.done:
	}
}

// dispatch runs a relay action on its own goroutine so a slow relay never
// holds up the loop.
func (c *Controller) dispatch(a logic.Action, reason logic.Reason) {
	if a == logic.ActionNone {
		return
	}
	last, _ := c.activity.LastActive()
	ev := logic.Event{
		Timestamp:  c.now(),
		Type:       logic.EventTypeFor(a),
		Reason:     reason,
		LastActive: last,
	}

	c.actions.Add(1)
	go func() {
		defer c.actions.Done()
		ctx, cancel := context.WithTimeout(c.actionCtx, relayTimeout)
		defer cancel()

		var err error
		if a == logic.ActionEnable {
			err = c.relay.Energize(ctx)
		} else {
			err = c.relay.DeEnergize(ctx)
		}
		if err != nil {
			err = &RelayError{Action: a, Err: err}
			c.log.Errorw("relay action failed", "action", a, "reason", reason, "err", err)
		} else {
			c.log.Infow("relay switched", "action", a, "reason", reason)
			if perr := c.pub.Publish(ev); perr != nil {
				c.log.Warnw("publish power event", "err", perr)
			}
		}
		c.send(context.Background(), &actionResult{action: a, err: err})
	}()
}

// report pushes the loop-owned state to the tracker.
func (c *Controller) report() {
	last, _ := c.activity.LastActive()
	c.tracker.Update(c.relayState, last, c.counts)
	if cs, ok := c.pub.(mqtt.ConnectionStatus); ok {
		c.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

func (c *Controller) publishSystem(event, reason string) {
	snap := c.tracker.Snapshot()
	err := c.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		c.log.Warnw("publish system event", "event", event, "err", err)
	}
}

func (c *Controller) statusConfig(s *config.Snapshot) status.Config {
	return status.Config{
		ButtonChannel:    s.ButtonChannel,
		DebounceMs:       s.Debounce.Milliseconds(),
		PollIntervalMs:   s.PollInterval.Milliseconds(),
		TimeoutMs:        s.Timeout.Milliseconds(),
		RequestTimeoutMs: s.RequestTimeout.Milliseconds(),
		BaseURL:          s.BaseURL,
		RelayBackend:     c.relayBackend,
		Broker:           s.MQTT.Broker,
	}
}
