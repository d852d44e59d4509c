package session

import (
	"errors"
	"fmt"

	"github.com/cardlens/benefit-cli/internal/model"
)

// ErrNotFound reports an unknown session id.
var ErrNotFound = errors.New("session: not found")

// InvalidStateError reports an operation attempted from the wrong phase.
// The session is left untouched; the caller gets told what phase the
// operation wanted.
type InvalidStateError struct {
	Op      string
	Phase   model.Phase
	Allowed []model.Phase
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session: %s not allowed in phase %q (requires %v)", e.Op, e.Phase, e.Allowed)
}

// BusyError reports a second operation arriving while one is already in
// flight for the same session. The caller should retry after the first
// completes.
type BusyError struct {
	SessionID string
	Op        string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session: %s busy, operation %s rejected", e.SessionID, e.Op)
}

// ConfigError reports bad input that aborts an operation before any work
// starts: an unknown bank key, an empty seed, an unknown card id.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "session: " + e.Reason
}

// IsInvalidState reports whether err is a wrong-phase rejection.
func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// IsBusy reports whether err is a concurrent-operation rejection.
func IsBusy(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}

// IsConfigError reports whether err is a bad-input rejection.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
