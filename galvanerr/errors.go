// Package galvanerr defines the error taxonomy shared by every Galvan
// component: supervisor preconditions, interlock invariant violations, and
// the harness-wide failure propagation path.
package galvanerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors checkable with errors.Is. Wrap them with errors.Wrap at
// the call site to attach a stack trace and local context.
var (
	// ErrAlreadyRunning is returned by Supervisor.Start when the server is
	// not in the Terminated state.
	ErrAlreadyRunning = errors.New("galvan: server already running")

	// ErrNotRunning is returned by Supervisor.Stop when the server is
	// already Terminated.
	ErrNotRunning = errors.New("galvan: server not running")

	// ErrHarnessFailed is returned by any interlock blocking wait once the
	// test state sink has recorded a failure, so orderly shutdown can
	// proceed instead of hanging forever on a predicate that will never
	// become true.
	ErrHarnessFailed = errors.New("galvan: harness failed")

	// ErrIoError wraps any stdio/pipe/fd failure. These are not expected in
	// normal operation; treat them as fatal.
	ErrIoError = errors.New("galvan: io error")
)

// ConfigInvalidError reports an unknown or duplicate server name, a
// registration after the interlock is sealed, a transition that would break
// an interlock invariant, or a control operation that finds no server in the
// state it needs. ServerIdentity values are not validated.
type ConfigInvalidError struct {
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("galvan: invalid configuration: %s", e.Reason)
}

// NewConfigInvalid builds a ConfigInvalidError with a formatted reason.
func NewConfigInvalid(format string, args ...interface{}) error {
	return &ConfigInvalidError{Reason: fmt.Sprintf(format, args...)}
}

// UnexpectedCrashError is the terminal record for a server that left a
// running state without a preceding stop() call. ExitStatus is nil when the
// server crashed before ever reporting a PID.
type UnexpectedCrashError struct {
	Server     string
	Reason     string
	Pid        int
	ExitStatus *int
}

func (e *UnexpectedCrashError) Error() string {
	if e.ExitStatus == nil {
		return fmt.Sprintf("Unexpected server crash: %s (server %s)", e.Reason, e.Server)
	}
	return fmt.Sprintf("Unexpected server crash: %s (server %s, PID %d, status: %d)",
		e.Reason, e.Server, e.Pid, *e.ExitStatus)
}

// IoError wraps a stdio/pipe/fd failure with galvan-level context while
// remaining matchable via errors.Is(err, ErrIoError).
func IoError(context string, cause error) error {
	return errors.Wrapf(ErrIoError, "%s: %v", context, cause)
}
