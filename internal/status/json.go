package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	State         string      `json:"state"`
	Relay         string      `json:"relay"`
	LastActive    string      `json:"last_active,omitempty"`
	IdleSeconds   int64       `json:"idle_seconds"`
	Printer       PrinterJSON `json:"printer"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"counts"`
	Config        ConfigJSON  `json:"config"`
}

// PrinterJSON reports what the last poll saw.
type PrinterJSON struct {
	Job          string   `json:"job"`
	Completion   *float64 `json:"completion,omitempty"`
	PollFailures int      `json:"poll_failures"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of activity counters.
type CountsJSON struct {
	Polls      int `json:"polls"`
	PollErrors int `json:"poll_errors"`
	Presses    int `json:"presses"`
	PowerOn    int `json:"power_on"`
	PowerOff   int `json:"power_off"`
	Reloads    int `json:"reloads"`
}

// ConfigJSON is the JSON representation of the active config.
type ConfigJSON struct {
	ButtonChannel    int    `json:"button_channel"`
	DebounceMs       int64  `json:"debounce_ms"`
	PollIntervalMs   int64  `json:"poll_interval_ms"`
	TimeoutMs        int64  `json:"timeout_ms"`
	RequestTimeoutMs int64  `json:"request_timeout_ms"`
	BaseURL          string `json:"base_url"`
	RelayBackend     string `json:"relay_backend"`
	Broker           string `json:"broker,omitempty"`
	HTTPAddr         string `json:"http_addr,omitempty"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         orUnknown(snap.State),
		Relay:         orUnknown(string(snap.Relay)),
		IdleSeconds:   int64(snap.Idle().Truncate(time.Second).Seconds()),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Printer: PrinterJSON{
			Job:          snap.Job,
			Completion:   snap.Completion,
			PollFailures: snap.PollFailures,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Polls:      snap.Counts.Polls,
			PollErrors: snap.Counts.PollErrors,
			Presses:    snap.Counts.Presses,
			PowerOn:    snap.Counts.PowerOn,
			PowerOff:   snap.Counts.PowerOff,
			Reloads:    snap.Counts.Reloads,
		},
		Config: ConfigJSON{
			ButtonChannel:    snap.Config.ButtonChannel,
			DebounceMs:       snap.Config.DebounceMs,
			PollIntervalMs:   snap.Config.PollIntervalMs,
			TimeoutMs:        snap.Config.TimeoutMs,
			RequestTimeoutMs: snap.Config.RequestTimeoutMs,
			BaseURL:          snap.Config.BaseURL,
			RelayBackend:     snap.Config.RelayBackend,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if !snap.LastActive.IsZero() {
		inner.LastActive = snap.LastActive.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
