//go:build !linux

package gpio

import (
	"context"
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealEdgeSource is not available on non-Linux platforms.
type RealEdgeSource struct{}

// NewRealEdgeSource returns an error on non-Linux platforms.
func NewRealEdgeSource(chipName string) (*RealEdgeSource, error) {
	return nil, errUnsupported
}

// Register is not implemented on non-Linux platforms.
func (s *RealEdgeSource) Register(channel int, debounce time.Duration, onPress func()) error {
	return &HardwareError{Op: "register", Channel: channel, Err: errUnsupported}
}

// Unregister is not implemented on non-Linux platforms.
func (s *RealEdgeSource) Unregister(channel int) error {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (s *RealEdgeSource) Close() error {
	return nil
}

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chipName string, channel int, activeLow bool) (*RealRelay, error) {
	return nil, errUnsupported
}

// Energize is not implemented on non-Linux platforms.
func (r *RealRelay) Energize(ctx context.Context) error {
	return errUnsupported
}

// DeEnergize is not implemented on non-Linux platforms.
func (r *RealRelay) DeEnergize(ctx context.Context) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}
