package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

// backlogLimit is the number of messages kept while the broker is unreachable.
const backlogLimit = 100

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string
	log    *zap.SugaredLogger

	mu      sync.Mutex
	backlog *backlog
}

// NewRealPublisher creates a publisher for the given broker. Topics are
// rooted at prefix. If the broker is not reachable within the connect
// timeout the publisher keeps retrying in the background.
func NewRealPublisher(broker, clientID, prefix string, log *zap.SugaredLogger) *RealPublisher {
	p := &RealPublisher{
		prefix:  prefix,
		log:     log,
		backlog: newBacklog(backlogLimit),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topic(TopicSystem), string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Infow("mqtt connected", "broker", broker)
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("mqtt connection lost", "broker", broker, "err", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warnw("mqtt connect timeout, retrying in background", "broker", broker)
	} else if err := token.Error(); err != nil {
		log.Warnw("mqtt connect failed, retrying in background", "broker", broker, "err", err)
	}
	return p
}

func (p *RealPublisher) topic(suffix string) string {
	return p.prefix + "/" + suffix
}

// Publish sends a power event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: power changes matter to subscribers
	return p.send(outMsg{topic: p.topic(TopicEvents), payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(outMsg{topic: p.topic(TopicSystem), payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg outMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		if p.backlog.add(msg) {
			p.log.Warnw("mqtt backlog full, dropping oldest", "limit", backlogLimit)
		}
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush replays buffered messages after a reconnect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.backlog.take()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	p.log.Infow("mqtt replaying backlog", "count", len(msgs), "dropped", dropped)
	for _, msg := range msgs {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			p.log.Warnw("mqtt replay failed", "topic", msg.topic, "err", token.Error())
		}
	}
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Relay returns a relay that switches a smart plug through this client.
func (p *RealPublisher) Relay(topic string) *Relay {
	return &Relay{client: p.client, topic: topic}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// Relay switches the printer's main power through an MQTT smart plug by
// publishing retained ON/OFF commands. Commands are level-set, so repeating
// one is harmless.
type Relay struct {
	client paho.Client
	topic  string
}

// Energize publishes ON.
func (r *Relay) Energize(ctx context.Context) error {
	return r.command(ctx, PayloadOn)
}

// DeEnergize publishes OFF.
func (r *Relay) DeEnergize(ctx context.Context) error {
	return r.command(ctx, PayloadOff)
}

// Commands are never buffered: a stale ON replayed after an outage could
// power up an idle printer.
func (r *Relay) command(ctx context.Context, payload string) error {
	if !r.client.IsConnectionOpen() {
		return fmt.Errorf("relay %s: not connected", r.topic)
	}
	token := r.client.Publish(r.topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("relay %s: %w", r.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("relay %s: %w", r.topic, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the publisher.
func (r *Relay) Close() error {
	return nil
}
