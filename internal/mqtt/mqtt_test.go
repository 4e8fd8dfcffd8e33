package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp:  time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:       logic.EventPowerOff,
		Reason:     logic.ReasonTimeout,
		LastActive: time.Date(2026, 2, 2, 21, 18, 0, 0, time.UTC),
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Power.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Power.Timestamp)
	}
	if parsed.Power.Event != "POWER_OFF" {
		t.Errorf("unexpected event: %s", parsed.Power.Event)
	}
	if parsed.Power.Reason != "TIMEOUT" {
		t.Errorf("unexpected reason: %s", parsed.Power.Reason)
	}
	if parsed.Power.LastActive != "2026-02-02T21:18:00Z" {
		t.Errorf("unexpected last_active: %s", parsed.Power.LastActive)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventPowerOn,
		Reason:    logic.ReasonButton,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// last_active omitted when never active
	expected := `{"power":{"timestamp":"2026-02-02T22:18:12Z","event":"POWER_ON","reason":"BUTTON"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadAllEventTypes(t *testing.T) {
	tests := []struct {
		action     logic.Action
		reason     logic.Reason
		wantEvent  string
		wantReason string
	}{
		{logic.ActionEnable, logic.ReasonButton, "POWER_ON", "BUTTON"},
		{logic.ActionDisable, logic.ReasonButton, "POWER_OFF", "BUTTON"},
		{logic.ActionDisable, logic.ReasonTimeout, "POWER_OFF", "TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.wantEvent+"_"+tt.wantReason, func(t *testing.T) {
			event := logic.Event{
				Timestamp: time.Now(),
				Type:      logic.EventTypeFor(tt.action),
				Reason:    tt.reason,
			}

			payload, err := FormatPayload(event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}

			if parsed.Power.Event != tt.wantEvent {
				t.Errorf("event: got %s, want %s", parsed.Power.Event, tt.wantEvent)
			}
			if parsed.Power.Reason != tt.wantReason {
				t.Errorf("reason: got %s, want %s", parsed.Power.Reason, tt.wantReason)
			}
		})
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 3, 12, 0, 0, 0, loc),
		Type:      logic.EventPowerOn,
		Reason:    logic.ReasonButton,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Power.Timestamp != "2026-02-03T10:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Power.Timestamp)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RELOAD",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(payload), "reason") {
		t.Errorf("reason should be omitted: %s", payload)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP","config":{}}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()

	event := logic.Event{Timestamp: time.Now(), Type: logic.EventPowerOn, Reason: logic.ReasonButton}
	if err := pub.Publish(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.Events()) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.Events()))
	}
	if pub.Events()[0].Type != logic.EventPowerOn {
		t.Errorf("unexpected event type: %s", pub.Events()[0].Type)
	}
	if len(pub.Payloads()) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(pub.Payloads()))
	}
}

func TestFakePublisherError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	err := pub.Publish(logic.Event{Type: logic.EventPowerOff})
	if err == nil || err.Error() != "broker down" {
		t.Errorf("expected injected error, got %v", err)
	}
	if len(pub.Events()) != 0 {
		t.Error("failed publish should not be recorded")
	}

	pub.PublishSystemError = errors.New("still down")
	if err := pub.PublishSystem(SystemEvent{Event: "RELOAD"}); err == nil {
		t.Error("expected injected system error")
	}
	if len(pub.SystemEvents()) != 0 {
		t.Error("failed system publish should not be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.Connected = true
	pub.Publish(logic.Event{Type: logic.EventPowerOn})
	pub.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	pub.Close()

	if !pub.Closed() {
		t.Error("expected Closed() after Close")
	}
	if !pub.SystemEvents()[0].Retained {
		t.Error("retained flag not recorded")
	}

	pub.Reset()
	if pub.Closed() || pub.IsConnected() {
		t.Error("reset should clear closed and connected")
	}
	if len(pub.Events()) != 0 || len(pub.SystemEvents()) != 0 || len(pub.SystemPayloads()) != 0 {
		t.Error("reset should clear recorded events")
	}
}

func TestFakePublisherPreservesEventOrder(t *testing.T) {
	pub := NewFakePublisher()
	types := []logic.EventType{logic.EventPowerOn, logic.EventPowerOff, logic.EventPowerOn}
	for _, et := range types {
		pub.Publish(logic.Event{Type: et})
	}
	got := pub.Events()
	for i, et := range types {
		if got[i].Type != et {
			t.Errorf("event %d: got %s, want %s", i, got[i].Type, et)
		}
	}
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	if err := p.Publish(logic.Event{}); err != nil {
		t.Error(err)
	}
	if err := p.PublishSystem(SystemEvent{}); err != nil {
		t.Error(err)
	}
	if (Discard{}).IsConnected() {
		t.Error("Discard should never report connected")
	}
}

// fakeToken is a paho.Token that completes with err once released.
type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, completed bool) *fakeToken {
	tok := &fakeToken{done: make(chan struct{}), err: err}
	if completed {
		close(tok.done)
	}
	return tok
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

// fakeClient records publishes. Only the methods the relay and publisher use
// are implemented.
type fakeClient struct {
	paho.Client
	open  bool
	token *fakeToken
	sent  []published
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload})
	return c.token
}

func TestRelayPublishesRetainedCommands(t *testing.T) {
	client := &fakeClient{open: true, token: newFakeToken(nil, true)}
	r := &Relay{client: client, topic: "cmnd/printer/POWER"}

	if err := r.Energize(context.Background()); err != nil {
		t.Fatalf("Energize: %v", err)
	}
	if err := r.DeEnergize(context.Background()); err != nil {
		t.Fatalf("DeEnergize: %v", err)
	}

	if len(client.sent) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(client.sent))
	}
	want := []string{PayloadOn, PayloadOff}
	for i, p := range client.sent {
		if p.topic != "cmnd/printer/POWER" {
			t.Errorf("publish %d topic: got %s", i, p.topic)
		}
		if p.qos != 1 || !p.retained {
			t.Errorf("publish %d: want qos 1 retained, got qos %d retained %v", i, p.qos, p.retained)
		}
		if p.payload != want[i] {
			t.Errorf("publish %d payload: got %v, want %s", i, p.payload, want[i])
		}
	}
}

func TestRelayDisconnectedFails(t *testing.T) {
	client := &fakeClient{open: false, token: newFakeToken(nil, true)}
	r := &Relay{client: client, topic: "cmnd/printer/POWER"}

	if err := r.Energize(context.Background()); err == nil {
		t.Fatal("expected error while disconnected")
	}
	if len(client.sent) != 0 {
		t.Error("relay commands must not be queued while disconnected")
	}
}

func TestRelayTokenError(t *testing.T) {
	client := &fakeClient{open: true, token: newFakeToken(errors.New("not authorized"), true)}
	r := &Relay{client: client, topic: "t"}

	err := r.DeEnergize(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("expected wrapped token error, got %v", err)
	}
}

func TestRelayContextDeadline(t *testing.T) {
	client := &fakeClient{open: true, token: newFakeToken(nil, false)}
	r := &Relay{client: client, topic: "t"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Energize(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRelayClose(t *testing.T) {
	r := &Relay{client: &fakeClient{}, topic: "t"}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func newOfflinePublisher(client *fakeClient) *RealPublisher {
	return &RealPublisher{
		client:  client,
		prefix:  "printer/watchdog",
		log:     zap.NewNop().Sugar(),
		backlog: newBacklog(backlogLimit),
	}
}

func TestRealPublisherReplaysBacklogOnReconnect(t *testing.T) {
	client := &fakeClient{open: false, token: newFakeToken(nil, true)}
	p := newOfflinePublisher(client)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := p.PublishSystem(SystemEvent{Timestamp: at, Event: "STARTUP", Retained: true}); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(logic.Event{Timestamp: at, Type: logic.EventPowerOn, Reason: logic.ReasonButton}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: at, Event: "RELOAD", Retained: true}); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(logic.Event{Timestamp: at, Type: logic.EventPowerOff, Reason: logic.ReasonTimeout}); err != nil {
		t.Fatal(err)
	}
	if len(client.sent) != 0 {
		t.Fatalf("sent %d messages while offline", len(client.sent))
	}

	client.open = true
	p.flush()

	want := []struct {
		topic    string
		contains string
		retained bool
	}{
		{"printer/watchdog/events", "POWER_ON", false},
		{"printer/watchdog/system", "RELOAD", true},
		{"printer/watchdog/events", "POWER_OFF", false},
	}
	if len(client.sent) != len(want) {
		t.Fatalf("replayed %d messages, want %d (older retained STARTUP replaced)", len(client.sent), len(want))
	}
	for i, w := range want {
		got := client.sent[i]
		payload, _ := got.payload.([]byte)
		if got.topic != w.topic || got.retained != w.retained || got.qos != 1 {
			t.Errorf("message %d: got topic=%s retained=%v qos=%d", i, got.topic, got.retained, got.qos)
		}
		if !strings.Contains(string(payload), w.contains) {
			t.Errorf("message %d: payload %s missing %s", i, payload, w.contains)
		}
	}

	p.flush()
	if len(client.sent) != len(want) {
		t.Errorf("second flush replayed again: %d messages", len(client.sent))
	}
}

func TestRealPublisherSendsDirectlyWhenConnected(t *testing.T) {
	client := &fakeClient{open: true, token: newFakeToken(nil, true)}
	p := newOfflinePublisher(client)

	if err := p.Publish(logic.Event{Type: logic.EventPowerOn, Reason: logic.ReasonButton}); err != nil {
		t.Fatal(err)
	}
	if len(client.sent) != 1 || client.sent[0].topic != "printer/watchdog/events" {
		t.Fatalf("sent: %+v", client.sent)
	}
	if p.backlog.len() != 0 {
		t.Errorf("backlog: got %d, want 0", p.backlog.len())
	}
}

func TestRealPublisherReportsPublishError(t *testing.T) {
	client := &fakeClient{open: true, token: newFakeToken(errors.New("not authorized"), true)}
	p := newOfflinePublisher(client)

	err := p.PublishSystem(SystemEvent{Event: "STARTUP"})
	if err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("got %v, want the broker error", err)
	}
}
