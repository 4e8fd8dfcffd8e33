package watchdog

import (
	"time"

	"github.com/sweeney/printer-watchdog/internal/logic"
	"github.com/sweeney/printer-watchdog/internal/octoprint"
)

// event is anything applied on the controller loop. apply runs on the loop
// goroutine only.
type event interface {
	apply(c *Controller)
}

// press is a debounced button press from the edge source.
type press struct {
	gen uint64
	at  time.Time
}

func (e *press) apply(c *Controller) {
	if e.gen != c.gen {
		c.log.Debugw("dropping stale press", "gen", e.gen, "current", c.gen)
		return
	}
	c.counts.Presses++
	c.log.Infow("button pressed", "channel", c.snap.ButtonChannel)
	c.dispatch(c.activity.Press(e.at), logic.ReasonButton)
	c.report()
}

// pollResult is the outcome of one periodic tick.
type pollResult struct {
	gen    uint64
	status octoprint.JobStatus
	err    error
}

func (e *pollResult) apply(c *Controller) {
	if e.gen != c.gen {
		c.log.Debugw("dropping stale poll result", "gen", e.gen, "current", c.gen)
		return
	}
	now := c.now()
	c.counts.Polls++

	if e.err != nil {
		// No information: the activity timestamp and the timeout stay as they were.
		c.counts.PollErrors++
		c.failures++
		c.log.Warnw("poll failed", "err", e.err, "consecutive", c.failures)
		c.tracker.SetPoll("", nil, c.failures)
		c.report()
		return
	}

	if c.failures > 0 {
		c.log.Infow("poll recovered", "after", c.failures)
	}
	c.failures = 0
	c.tracker.SetPoll(e.status.Text, e.status.Completion, 0)
	c.log.Debugw("poll", "state", e.status.Text, "completion", e.status.Completion)

	c.activity.PollResult(e.status.State, now)
	c.dispatch(c.activity.Check(now, c.snap.Timeout), logic.ReasonTimeout)
	c.report()
}

// actionResult reports a finished relay action.
type actionResult struct {
	action logic.Action
	err    error
}

func (e *actionResult) apply(c *Controller) {
	if e.err != nil {
		return
	}
	if e.action == logic.ActionEnable {
		c.counts.PowerOn++
	} else {
		c.counts.PowerOff++
	}
	c.relayState = logic.StateFor(e.action)
	c.report()
}

// reloadRequest asks the loop to reload the configuration.
type reloadRequest struct {
	trigger string
	reply   chan error
}

func (e *reloadRequest) apply(c *Controller) {
	e.reply <- c.reload(e.trigger)
}

// quitRequest asks the loop to shut down.
type quitRequest struct {
	trigger string
	reply   chan error
}

func (e *quitRequest) apply(c *Controller) {
	c.shutdown(e.trigger)
	e.reply <- nil
}
