package gpio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

// FakeEdgeSource is a test double that lets tests inject falling edges.
type FakeEdgeSource struct {
	mu   sync.Mutex
	regs map[int]*fakeRegistration

	// RegisterError, if set, will be returned by Register.
	RegisterError error

	// Registrations counts successful Register calls.
	Registrations int

	// Closed tracks if Close was called.
	Closed bool
}

type fakeRegistration struct {
	debounce time.Duration
	deb      *logic.Debouncer
	onPress  func()
}

// NewFakeEdgeSource creates an empty FakeEdgeSource.
func NewFakeEdgeSource() *FakeEdgeSource {
	return &FakeEdgeSource{regs: make(map[int]*fakeRegistration)}
}

// Register records the callback for channel.
func (f *FakeEdgeSource) Register(channel int, debounce time.Duration, onPress func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RegisterError != nil {
		return &HardwareError{Op: "register", Channel: channel, Err: f.RegisterError}
	}
	if f.Closed {
		return &HardwareError{Op: "register", Channel: channel, Err: ErrClosed}
	}
	if channel < 0 {
		return &HardwareError{Op: "register", Channel: channel, Err: ErrInvalidChannel}
	}
	if _, ok := f.regs[channel]; ok {
		return &HardwareError{Op: "register", Channel: channel, Err: ErrBusy}
	}
	f.regs[channel] = &fakeRegistration{
		debounce: debounce,
		deb:      logic.NewDebouncer(debounce),
		onPress:  onPress,
	}
	f.Registrations++
	return nil
}

// Unregister forgets channel.
func (f *FakeEdgeSource) Unregister(channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.regs, channel)
	return nil
}

// Close marks the source as closed and drops all registrations.
func (f *FakeEdgeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = make(map[int]*fakeRegistration)
	f.Closed = true
	return nil
}

// Edge simulates a falling edge on channel at the given time. It reports
// whether the edge produced a press (false if unregistered or debounced).
func (f *FakeEdgeSource) Edge(channel int, at time.Time) bool {
	f.mu.Lock()
	reg, ok := f.regs[channel]
	if !ok || !reg.deb.Accept(at) {
		f.mu.Unlock()
		return false
	}
	onPress := reg.onPress
	f.mu.Unlock()

	onPress()
	return true
}

// Channels returns the registered channels in ascending order.
func (f *FakeEdgeSource) Channels() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]int, 0, len(f.regs))
	for ch := range f.regs {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// Debounce returns the debounce window registered for channel.
func (f *FakeEdgeSource) Debounce(channel int) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[channel]
	if !ok {
		return 0, false
	}
	return reg.debounce, true
}

// FakeRelay records relay operations for test assertions.
type FakeRelay struct {
	mu sync.Mutex

	state   logic.State
	actions []logic.Action

	// Err, if set, will be returned by Energize and DeEnergize.
	Err error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRelay creates a FakeRelay in an unknown state.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Energize records an enable action.
func (f *FakeRelay) Energize(ctx context.Context) error {
	return f.apply(logic.ActionEnable)
}

// DeEnergize records a disable action.
func (f *FakeRelay) DeEnergize(ctx context.Context) error {
	return f.apply(logic.ActionDisable)
}

func (f *FakeRelay) apply(a logic.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.actions = append(f.actions, a)
	if f.Err != nil {
		return f.Err
	}
	f.state = logic.StateFor(a)
	return nil
}

// Close marks the relay as closed.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// State returns the current relay state ("" if never switched).
func (f *FakeRelay) State() logic.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Actions returns every requested action, including failed ones.
func (f *FakeRelay) Actions() []logic.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Action(nil), f.actions...)
}

// SetErr changes the error returned by subsequent operations.
func (f *FakeRelay) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// IsClosed reports whether Close was called.
func (f *FakeRelay) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}
