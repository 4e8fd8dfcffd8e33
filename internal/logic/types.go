// Package logic contains the pure decision logic of the watchdog.
// This package has NO external dependencies (no GPIO, HTTP, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of the power relay.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// JobState is the printer job state as far as the watchdog cares.
type JobState string

const (
	JobPrinting JobState = "Printing"
	JobOther    JobState = "Other"
)

// ParseJobState maps a remote state string onto a JobState.
// Anything that is not exactly "Printing" counts as not printing.
func ParseJobState(s string) JobState {
	if s == string(JobPrinting) {
		return JobPrinting
	}
	return JobOther
}

// Action is a relay action the watchdog wants performed.
type Action string

const (
	ActionNone    Action = ""
	ActionEnable  Action = "ENABLE"
	ActionDisable Action = "DISABLE"
)

// Reason explains why a power event happened.
type Reason string

const (
	ReasonButton  Reason = "BUTTON"
	ReasonTimeout Reason = "TIMEOUT"
)

// EventType is a power event type.
type EventType string

const (
	EventPowerOn  EventType = "POWER_ON"
	EventPowerOff EventType = "POWER_OFF"
)

// Event is a completed relay action to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reason    Reason
	// LastActive is the activity timestamp at dispatch time (zero if never active).
	LastActive time.Time
}

// EventTypeFor returns the event type emitted for a relay action.
func EventTypeFor(a Action) EventType {
	if a == ActionEnable {
		return EventPowerOn
	}
	return EventPowerOff
}

// StateFor returns the relay state an action leaves behind.
func StateFor(a Action) State {
	if a == ActionEnable {
		return StateOn
	}
	return StateOff
}

// Counts tracks watchdog activity since startup.
type Counts struct {
	Polls      int
	PollErrors int
	Presses    int
	PowerOn    int
	PowerOff   int
	Reloads    int
}
