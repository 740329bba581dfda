// Package kerrors defines the kernel's discriminated error result, used
// instead of panics or bare error strings so the scheduler and message
// dispatcher never need to distinguish error shapes beyond Kind.
package kerrors

import "fmt"

// Kind classifies a kernel error from most to least local, matching
// spec.md §7.
type Kind string

const (
	InvalidFrame     Kind = "invalid_frame"
	InvalidPayload   Kind = "invalid_payload"
	SignatureMismatch Kind = "signature_mismatch"
	IdentityMismatch Kind = "identity_mismatch"
	RateLimited      Kind = "rate_limited"
	NotMember        Kind = "not_member"
	Stale            Kind = "stale"
	ConflictResolved Kind = "conflict_resolved"
	TransientHost    Kind = "transient_host"
	Fatal            Kind = "fatal"
)

// KernelError is the typed error result every handler returns. Message is
// always safe to surface to an operator: no stack traces, no internal
// paths.
type KernelError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *KernelError) Unwrap() error { return e.Err }

// New builds a KernelError with no wrapped cause.
func New(kind Kind, message string) *KernelError {
	return &KernelError{Kind: kind, Message: message}
}

// Wrap builds a KernelError around an existing error, keeping the
// original for inspection via errors.Unwrap while exposing only Message
// to operator-facing output.
func Wrap(kind Kind, message string, err error) *KernelError {
	return &KernelError{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is a *KernelError of the given kind.
func IsKind(err error, kind Kind) bool {
	ke, ok := err.(*KernelError)
	return ok && ke.Kind == kind
}

// Transient reports whether the error kind represents a recoverable,
// retry-next-cycle condition rather than a dropped-message or fatal one.
func (k Kind) Transient() bool {
	return k == TransientHost
}

// Silent reports whether the error kind should be dropped without
// incrementing a user-visible failure signal — rate limiting and staleness
// are expected background noise, not misbehavior.
func (k Kind) Silent() bool {
	switch k {
	case RateLimited, Stale, InvalidFrame:
		return true
	}
	return false
}
