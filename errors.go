package lnchan

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// InvariantViolation is returned when a local operation is refused because
// it would break a channel-state invariant (amount/expiry shape, the
// accepted-HTLC cap, in-flight value cap, or a reserve shortfall): the
// caller picks a different action (e.g. a smaller HTLC, or none at all).
type InvariantViolation struct {
	Invariant string
	Reason    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Reason)
}

// PaymentFailure is InvariantViolation's name when the refused operation is
// specifically add_htlc: the two are the same error kind, distinguished
// only for caller ergonomics (a payment attempt vs. any other mutation).
type PaymentFailure struct {
	*InvariantViolation
}

func newPaymentFailure(invariant, reason string) error {
	return &PaymentFailure{&InvariantViolation{Invariant: invariant, Reason: reason}}
}

func newInvariantViolation(invariant, reason string) error {
	return &InvariantViolation{Invariant: invariant, Reason: reason}
}

// RemoteMisbehaving is returned when the peer sent a value that itself
// violates the protocol: a duplicate htlc_id, a bad signature, a
// non-descending revocation index, a settle without a matching preimage.
// It is fatal for the channel — callers transition to FORCE_CLOSING. The
// stack is captured at the detection site (via go-errors/errors, as the
// teacher does for its own fatal peer-level errors) so an orchestrator's
// crash log shows where in commitment/HTLC processing the peer's
// misbehavior was caught, not just where it was eventually logged.
type RemoteMisbehaving struct {
	Reason string
	err    *goerrors.Error
}

func (e *RemoteMisbehaving) Error() string {
	return fmt.Sprintf("remote misbehaving: %s", e.Reason)
}

// Stack returns the formatted stack trace captured when this error was
// constructed.
func (e *RemoteMisbehaving) Stack() string {
	return string(e.err.Stack())
}

func newRemoteMisbehaving(format string, args ...interface{}) error {
	reason := fmt.Sprintf(format, args...)
	return &RemoteMisbehaving{Reason: reason, err: goerrors.Errorf("remote misbehaving: %s", reason)}
}

// CryptoFailure is returned when a signature or hash verification fails.
// Same disposition as RemoteMisbehaving.
type CryptoFailure struct {
	Reason string
	err    *goerrors.Error
}

func (e *CryptoFailure) Error() string {
	return fmt.Sprintf("crypto verification failed: %s", e.Reason)
}

// Stack returns the formatted stack trace captured when this error was
// constructed.
func (e *CryptoFailure) Stack() string {
	return string(e.err.Stack())
}

func newCryptoFailure(format string, args ...interface{}) error {
	reason := fmt.Sprintf(format, args...)
	return &CryptoFailure{Reason: reason, err: goerrors.Errorf("crypto verification failed: %s", reason)}
}

// StateError is returned when an operation is invoked in the wrong channel
// state. This is a programmer error in the orchestrator: fail fast.
type StateError struct {
	Operation string
	State     ChannelState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("operation %s invalid in state %s", e.Operation, e.State)
}

func newStateError(op string, state ChannelState) error {
	return &StateError{Operation: op, State: state}
}

// UnknownPaymentHash is returned by preimage-lookup style queries that
// miss. Non-fatal.
type UnknownPaymentHash struct {
	PaymentHash [32]byte
}

func (e *UnknownPaymentHash) Error() string {
	return fmt.Sprintf("unknown payment hash %x", e.PaymentHash)
}
