// Package bsuerrors gives the daemon's error kinds first-class Go identity
// so the reconciler can branch on retryability instead of string-matching.
package bsuerrors

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// ConfigInvalid is fatal at startup.
	ConfigInvalid Kind = iota
	// CloudUnavailable covers transient cloud API failures; retryable each tick.
	CloudUnavailable
	// CloudConflict covers volume-not-found or state-mismatch responses; retryable.
	CloudConflict
	// QuotaExceeded means the tick fails and is logged; operator intervention expected.
	QuotaExceeded
	// ExternalCommandFailed wraps a non-zero exit from a strict exec call; retryable.
	ExternalCommandFailed
	// InvariantViolation means ground truth contradicts an assumption the staircase relies on.
	InvariantViolation
	// EarlyExit is not a failure; it unwinds a reconcile after a stop command.
	EarlyExit
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "config_invalid"
	case CloudUnavailable:
		return "cloud_unavailable"
	case CloudConflict:
		return "cloud_conflict"
	case QuotaExceeded:
		return "quota_exceeded"
	case ExternalCommandFailed:
		return "external_command_failed"
	case InvariantViolation:
		return "invariant_violation"
	case EarlyExit:
		return "early_exit"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that raised it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error for op with the given kind wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, or false if err is not a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether a tick should simply be retried on the next
// cooldown window rather than treated as fatal. ConfigInvalid is fatal at
// startup and EarlyExit is not a failure at all, so neither is "retryable"
// in the sense the reconciler loop cares about.
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return true
	}
	switch k {
	case ConfigInvalid, EarlyExit:
		return false
	default:
		return true
	}
}

// ErrEarlyExit is the sentinel raised when a stop command interrupts a
// reconcile in progress. It unwinds the staircase without being logged as
// a failure.
var ErrEarlyExit = New(EarlyExit, "reconcile", errors.New("stop requested"))
