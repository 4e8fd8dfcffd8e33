// Package config loads the watchdog configuration file into an immutable Snapshot.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for optional keys.
const (
	DefaultRequestTimeout = 1 * time.Second
	DefaultChip           = "gpiochip0"
	DefaultClientID       = "printer-watchdog"
	DefaultTopicPrefix    = "printer/watchdog"
)

// Error reports a malformed or missing configuration value.
type Error struct {
	Key string // empty when the document itself is unreadable
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrMissing is wrapped by Error when a required key is absent.
var ErrMissing = errors.New("required key missing")

// Snapshot is one immutable view of the configuration.
// A reload builds a new Snapshot; an existing one is never modified.
type Snapshot struct {
	ButtonChannel  int
	Debounce       time.Duration
	PollInterval   time.Duration
	Timeout        time.Duration
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration

	Relay RelayConfig
	MQTT  MQTTConfig
}

// RelayConfig selects the GPIO relay line. Read at start-up only.
type RelayConfig struct {
	Chip      string
	Channel   int
	Enabled   bool
	ActiveLow bool
}

// MQTTConfig holds broker settings. Read at start-up only.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	RelayTopic  string
	TopicPrefix string
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// rawConfig mirrors the YAML document. Pointers distinguish absent keys
// from zero values.
type rawConfig struct {
	ButtonChannel  *int     `yaml:"BUTTON_CHANNEL"`
	BounceTime     *float64 `yaml:"BOUNCE_TIME"`
	CheckInterval  *float64 `yaml:"MAIN_POWER_CHECK_INTERVAL"`
	Timeout        *float64 `yaml:"MAIN_POWER_TIMEOUT"`
	BaseURL        *string  `yaml:"API_BASE_URL"`
	APIKey         *string  `yaml:"API_KEY"`
	RequestTimeout *float64 `yaml:"REQUEST_TIMEOUT"`

	Chip           string `yaml:"GPIO_CHIP"`
	RelayChannel   *int   `yaml:"RELAY_CHANNEL"`
	RelayActiveLow bool   `yaml:"RELAY_ACTIVE_LOW"`

	MQTTBroker      string `yaml:"MQTT_BROKER"`
	MQTTClientID    string `yaml:"MQTT_CLIENT_ID"`
	MQTTRelayTopic  string `yaml:"MQTT_RELAY_TOPIC"`
	MQTTTopicPrefix string `yaml:"MQTT_TOPIC_PREFIX"`
}

// Load reads and validates the configuration file at path.
// All failures are returned as *Error.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Snapshot, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, &Error{Err: fmt.Errorf("decode: %w", err)}
	}
	return raw.snapshot()
}

func (r rawConfig) snapshot() (*Snapshot, error) {
	if r.ButtonChannel == nil {
		return nil, &Error{Key: "BUTTON_CHANNEL", Err: ErrMissing}
	}
	if *r.ButtonChannel < 0 {
		return nil, &Error{Key: "BUTTON_CHANNEL", Err: fmt.Errorf("must be >= 0, got %d", *r.ButtonChannel)}
	}
	debounce, err := duration("BOUNCE_TIME", r.BounceTime, time.Millisecond)
	if err != nil {
		return nil, err
	}
	interval, err := duration("MAIN_POWER_CHECK_INTERVAL", r.CheckInterval, time.Second)
	if err != nil {
		return nil, err
	}
	if interval == 0 {
		return nil, &Error{Key: "MAIN_POWER_CHECK_INTERVAL", Err: errors.New("must be > 0")}
	}
	timeout, err := duration("MAIN_POWER_TIMEOUT", r.Timeout, time.Second)
	if err != nil {
		return nil, err
	}
	baseURL, err := required("API_BASE_URL", r.BaseURL)
	if err != nil {
		return nil, err
	}
	apiKey, err := required("API_KEY", r.APIKey)
	if err != nil {
		return nil, err
	}

	reqTimeout := DefaultRequestTimeout
	if r.RequestTimeout != nil {
		reqTimeout, err = duration("REQUEST_TIMEOUT", r.RequestTimeout, time.Second)
		if err != nil {
			return nil, err
		}
		if reqTimeout == 0 {
			return nil, &Error{Key: "REQUEST_TIMEOUT", Err: errors.New("must be > 0")}
		}
	}

	snap := &Snapshot{
		ButtonChannel:  *r.ButtonChannel,
		Debounce:       debounce,
		PollInterval:   interval,
		Timeout:        timeout,
		BaseURL:        strings.TrimRight(baseURL, "/"),
		APIKey:         apiKey,
		RequestTimeout: reqTimeout,
		Relay: RelayConfig{
			Chip:      orDefault(r.Chip, DefaultChip),
			ActiveLow: r.RelayActiveLow,
		},
		MQTT: MQTTConfig{
			Broker:      r.MQTTBroker,
			ClientID:    orDefault(r.MQTTClientID, DefaultClientID),
			RelayTopic:  r.MQTTRelayTopic,
			TopicPrefix: strings.TrimRight(orDefault(r.MQTTTopicPrefix, DefaultTopicPrefix), "/"),
		},
	}

	if r.RelayChannel != nil {
		if *r.RelayChannel < 0 {
			return nil, &Error{Key: "RELAY_CHANNEL", Err: fmt.Errorf("must be >= 0, got %d", *r.RelayChannel)}
		}
		if *r.RelayChannel == snap.ButtonChannel {
			return nil, &Error{Key: "RELAY_CHANNEL", Err: errors.New("must differ from BUTTON_CHANNEL")}
		}
		snap.Relay.Channel = *r.RelayChannel
		snap.Relay.Enabled = true
	}
	if snap.MQTT.RelayTopic != "" && !snap.MQTT.Enabled() {
		return nil, &Error{Key: "MQTT_RELAY_TOPIC", Err: errors.New("requires MQTT_BROKER")}
	}
	return snap, nil
}

// duration converts a non-negative number of units into a time.Duration.
func duration(key string, v *float64, unit time.Duration) (time.Duration, error) {
	if v == nil {
		return 0, &Error{Key: key, Err: ErrMissing}
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return 0, &Error{Key: key, Err: fmt.Errorf("must be a non-negative number, got %v", *v)}
	}
	return time.Duration(*v * float64(unit)), nil
}

func required(key string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", &Error{Key: key, Err: ErrMissing}
	}
	return *v, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
