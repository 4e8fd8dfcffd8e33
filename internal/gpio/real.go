//go:build linux

package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/printer-watchdog/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealEdgeSource detects button presses on actual hardware using the Linux
// GPIO character device.
type RealEdgeSource struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewRealEdgeSource opens the named chip (e.g. "gpiochip0").
func NewRealEdgeSource(chipName string) (*RealEdgeSource, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealEdgeSource{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// Register requests channel as a pulled-up input with falling-edge detection.
// The button shorts the line to ground, so a press is a falling edge.
func (s *RealEdgeSource) Register(channel int, debounce time.Duration, onPress func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chip == nil {
		return &HardwareError{Op: "register", Channel: channel, Err: ErrClosed}
	}
	if channel < 0 || channel >= s.chip.Lines() {
		return &HardwareError{Op: "register", Channel: channel, Err: ErrInvalidChannel}
	}
	if _, ok := s.lines[channel]; ok {
		return &HardwareError{Op: "register", Channel: channel, Err: ErrBusy}
	}

	var dmu sync.Mutex
	deb := logic.NewDebouncer(debounce)
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventFallingEdge {
			return
		}
		dmu.Lock()
		ok := deb.Accept(time.Now())
		dmu.Unlock()
		if ok {
			onPress()
		}
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(handler),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(min(debounce, kernelDebounce)))
	}

	line, err := s.chip.RequestLine(channel, opts...)
	if err != nil {
		return &HardwareError{Op: "register", Channel: channel, Err: err}
	}
	s.lines[channel] = line
	return nil
}

// Unregister closes the line, stopping edge detection on channel.
func (s *RealEdgeSource) Unregister(channel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[channel]
	if !ok {
		return nil
	}
	delete(s.lines, channel)
	if err := line.Close(); err != nil {
		return &HardwareError{Op: "unregister", Channel: channel, Err: err}
	}
	return nil
}

// Close releases all lines and the chip.
func (s *RealEdgeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for channel, line := range s.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", channel, err))
		}
	}
	s.lines = make(map[int]*gpiocdev.Line)

	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		s.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealRelay drives the printer's main power relay from an output line.
type RealRelay struct {
	mu      sync.Mutex
	line    *gpiocdev.Line
	channel int
}

// NewRealRelay requests channel on chipName as an output. The current
// level is preserved so a restart does not cut power to a running print.
func NewRealRelay(chipName string, channel int, activeLow bool) (*RealRelay, error) {
	var polarity []gpiocdev.LineReqOption
	if activeLow {
		polarity = append(polarity, gpiocdev.AsActiveLow)
	}

	probe, err := gpiocdev.RequestLine(chipName, channel, append(polarity, gpiocdev.AsInput)...)
	if err != nil {
		return nil, &HardwareError{Op: "relay", Channel: channel, Err: err}
	}
	current, err := probe.Value()
	probe.Close()
	if err != nil {
		return nil, &HardwareError{Op: "relay", Channel: channel, Err: fmt.Errorf("read value: %w", err)}
	}

	line, err := gpiocdev.RequestLine(chipName, channel, append(polarity, gpiocdev.AsOutput(current))...)
	if err != nil {
		return nil, &HardwareError{Op: "relay", Channel: channel, Err: err}
	}
	return &RealRelay{line: line, channel: channel}, nil
}

// Energize switches main power on.
func (r *RealRelay) Energize(ctx context.Context) error {
	return r.set(1)
}

// DeEnergize switches main power off.
func (r *RealRelay) DeEnergize(ctx context.Context) error {
	return r.set(0)
}

func (r *RealRelay) set(v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.line == nil {
		return &HardwareError{Op: "relay", Channel: r.channel, Err: ErrClosed}
	}
	if err := r.line.SetValue(v); err != nil {
		return &HardwareError{Op: "relay", Channel: r.channel, Err: err}
	}
	return nil
}

// Close releases the output line. The relay keeps its last level.
func (r *RealRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.line == nil {
		return nil
	}
	err := r.line.Close()
	r.line = nil
	if err != nil {
		return fmt.Errorf("close relay line %d: %w", r.channel, err)
	}
	return nil
}
