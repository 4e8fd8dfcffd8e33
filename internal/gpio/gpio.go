// Package gpio provides button edge detection and relay output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// EdgeSource delivers debounced falling-edge presses from input lines.
type EdgeSource interface {
	// Register installs onPress for falling edges on channel. Edges within
	// debounce of an accepted edge are suppressed. Only one callback may be
	// registered per channel; a second Register fails with *HardwareError.
	Register(channel int, debounce time.Duration, onPress func()) error

	// Unregister releases the channel. A no-op if it is not registered.
	Unregister(channel int) error

	// Close releases all lines and the chip.
	Close() error
}

// kernelDebounce is the settle period requested from the kernel. It only
// filters contact chatter; the logical lock-out window is applied in software
// so a short press is never swallowed.
const kernelDebounce = 5 * time.Millisecond

// Errors wrapped by HardwareError.
var (
	ErrBusy           = errors.New("channel already registered")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrClosed         = errors.New("gpio closed")
)

// HardwareError reports an interrupt registration or line failure.
type HardwareError struct {
	Op      string
	Channel int
	Err     error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("gpio %s channel %d: %v", e.Op, e.Channel, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
