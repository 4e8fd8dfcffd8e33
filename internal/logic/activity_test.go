package logic

import (
	"testing"
	"time"
)

func TestNewActivityUnset(t *testing.T) {
	a := NewActivity()
	if _, ok := a.LastActive(); ok {
		t.Error("new activity should have no timestamp")
	}
}

func TestCheckWithoutTimestampNeverFires(t *testing.T) {
	a := NewActivity()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		if got := a.Check(now.Add(time.Duration(i)*time.Hour), time.Minute); got != ActionNone {
			t.Fatalf("iteration %d: expected no action without timestamp, got %q", i, got)
		}
	}
}

func TestPressSetsTimestampAndEnables(t *testing.T) {
	a := NewActivity()
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)

	if got := a.Press(now); got != ActionEnable {
		t.Errorf("expected ENABLE, got %q", got)
	}
	last, ok := a.LastActive()
	if !ok {
		t.Fatal("expected timestamp after press")
	}
	if !last.Equal(now) {
		t.Errorf("expected last active %v, got %v", now, last)
	}
}

func TestPollResultPrintingSetsTimestamp(t *testing.T) {
	a := NewActivity()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a.PollResult(JobPrinting, now)
	last, ok := a.LastActive()
	if !ok || !last.Equal(now) {
		t.Errorf("expected last active %v, got %v (set=%v)", now, last, ok)
	}
}

func TestPollResultOtherLeavesTimestamp(t *testing.T) {
	a := NewActivity()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a.PollResult(JobOther, start)
	if _, ok := a.LastActive(); ok {
		t.Error("non-printing poll must not set the timestamp")
	}

	a.PollResult(JobPrinting, start)
	a.PollResult(JobOther, start.Add(time.Minute))
	last, _ := a.LastActive()
	if !last.Equal(start) {
		t.Errorf("non-printing poll changed timestamp to %v", last)
	}
}

func TestObserveIsMonotonic(t *testing.T) {
	a := NewActivity()
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a.Observe(t1)
	a.Observe(t1.Add(-time.Second))
	last, _ := a.LastActive()
	if !last.Equal(t1) {
		t.Errorf("older observation moved timestamp back to %v", last)
	}

	a.Observe(t1.Add(time.Second))
	last, _ = a.LastActive()
	if !last.Equal(t1.Add(time.Second)) {
		t.Errorf("newer observation ignored, got %v", last)
	}
}

func TestCheckTimeoutIsStrict(t *testing.T) {
	a := NewActivity()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.PollResult(JobPrinting, start)

	if got := a.Check(start.Add(60*time.Second), 60*time.Second); got != ActionNone {
		t.Errorf("exactly at timeout: expected no action, got %q", got)
	}
	if got := a.Check(start.Add(60*time.Second+time.Nanosecond), 60*time.Second); got != ActionDisable {
		t.Errorf("past timeout: expected DISABLE, got %q", got)
	}
}

func TestCheckFiresOnEveryTickAfterTimeout(t *testing.T) {
	a := NewActivity()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.PollResult(JobPrinting, start)

	var fired []int
	for tick := 0; tick <= 90; tick += 5 {
		if a.Check(start.Add(time.Duration(tick)*time.Second), 60*time.Second) == ActionDisable {
			fired = append(fired, tick)
		}
	}
	want := []int{65, 70, 75, 80, 85, 90}
	if len(fired) != len(want) {
		t.Fatalf("expected disable at %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("tick %d: expected %ds, got %ds", i, want[i], fired[i])
		}
	}
}

func TestPressAfterTimeoutRearms(t *testing.T) {
	a := NewActivity()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.PollResult(JobPrinting, start)

	if a.Check(start.Add(2*time.Minute), time.Minute) != ActionDisable {
		t.Fatal("expected timeout to fire")
	}
	a.Press(start.Add(2 * time.Minute))
	if got := a.Check(start.Add(2*time.Minute+30*time.Second), time.Minute); got != ActionNone {
		t.Errorf("expected press to re-arm, got %q", got)
	}
}

func TestParseJobState(t *testing.T) {
	tests := []struct {
		in   string
		want JobState
	}{
		{"Printing", JobPrinting},
		{"Operational", JobOther},
		{"Paused", JobOther},
		{"printing", JobOther},
		{"", JobOther},
	}
	for _, tt := range tests {
		if got := ParseJobState(tt.in); got != tt.want {
			t.Errorf("ParseJobState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEventTypeAndStateFor(t *testing.T) {
	if EventTypeFor(ActionEnable) != EventPowerOn {
		t.Error("ENABLE should map to POWER_ON")
	}
	if EventTypeFor(ActionDisable) != EventPowerOff {
		t.Error("DISABLE should map to POWER_OFF")
	}
	if StateFor(ActionEnable) != StateOn {
		t.Error("ENABLE should leave relay ON")
	}
	if StateFor(ActionDisable) != StateOff {
		t.Error("DISABLE should leave relay OFF")
	}
}
