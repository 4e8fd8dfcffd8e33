package watchdog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

// ErrStopped is returned by Reload once the controller has shut down.
var ErrStopped = errors.New("watchdog stopped")

// RelayError reports a failed relay action. It is logged and never
// escalated; the next qualifying tick or press repeats the action.
type RelayError struct {
	Action logic.Action
	Err    error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay %s: %v", strings.ToLower(string(e.Action)), e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }
