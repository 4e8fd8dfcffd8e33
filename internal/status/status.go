// Package status provides a thread-safe status tracker for the printer-watchdog daemon.
// The controller writes to it from its event loop; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

// Config contains the active configuration for display.
type Config struct {
	ButtonChannel    int
	DebounceMs       int64
	PollIntervalMs   int64
	TimeoutMs        int64
	RequestTimeoutMs int64
	BaseURL          string
	RelayBackend     string // "gpio", "mqtt" or "log"
	Broker           string
	HTTPAddr         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         string // controller lifecycle state
	Relay         logic.State
	LastActive    time.Time
	Job           string
	Completion    *float64
	PollFailures  int // consecutive failed polls
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Idle returns how long ago the printer was last active, or zero if it never was.
func (s Snapshot) Idle() time.Duration {
	if s.LastActive.IsZero() {
		return 0
	}
	return s.Now.Sub(s.LastActive)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// SetState records the controller lifecycle state.
func (t *Tracker) SetState(state string) {
	t.mu.Lock()
	t.snap.State = state
	t.mu.Unlock()
}

// SetConfig replaces the displayed configuration after a reload.
// HTTPAddr is process-wide and survives the replacement.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = t.snap.Config.HTTPAddr
	}
	t.snap.Config = cfg
	t.mu.Unlock()
}

// Update sets the relay state, activity timestamp and counters.
func (t *Tracker) Update(relay logic.State, lastActive time.Time, counts logic.Counts) {
	t.mu.Lock()
	t.snap.Relay = relay
	t.snap.LastActive = lastActive
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetPoll records the outcome of the latest poll. failures is the number
// of consecutive failed polls; job and completion are kept from the last
// successful poll when failures > 0.
func (t *Tracker) SetPoll(job string, completion *float64, failures int) {
	t.mu.Lock()
	if failures == 0 {
		t.snap.Job = job
		t.snap.Completion = completion
	}
	t.snap.PollFailures = failures
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
