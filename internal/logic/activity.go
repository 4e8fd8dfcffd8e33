package logic

import "time"

// Activity tracks the last instant the printer was known to be doing work
// and decides when main power should be cut.
type Activity struct {
	lastActive time.Time
	set        bool
}

// NewActivity creates an Activity that has never seen the printer active.
func NewActivity() *Activity {
	return &Activity{}
}

// Observe records activity at t. The timestamp only moves forward; an
// observation older than the current one is ignored.
func (a *Activity) Observe(t time.Time) {
	if a.set && !t.After(a.lastActive) {
		return
	}
	a.lastActive = t
	a.set = true
}

// LastActive returns the activity timestamp and whether it has been set.
func (a *Activity) LastActive() (time.Time, bool) {
	return a.lastActive, a.set
}

// Press handles a button press at now and returns the action to dispatch.
func (a *Activity) Press(now time.Time) Action {
	a.Observe(now)
	return ActionEnable
}

// PollResult applies a successful poll at now. A printing job refreshes
// the timestamp; any other state leaves it alone.
func (a *Activity) PollResult(state JobState, now time.Time) {
	if state == JobPrinting {
		a.Observe(now)
	}
}

// Check returns ActionDisable once more than timeout has passed since the
// last activity. It keeps returning ActionDisable on every later call; the
// relay operation is idempotent. Without a timestamp it never fires.
func (a *Activity) Check(now time.Time, timeout time.Duration) Action {
	if !a.set {
		return ActionNone
	}
	if now.Sub(a.lastActive) > timeout {
		return ActionDisable
	}
	return ActionNone
}
