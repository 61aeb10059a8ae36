// Package errs defines the error taxonomy shared by every core component.
//
// Every fallible operation in storage, artifact, session, hook, agentfsm,
// shutdown and workflow returns (or wraps) an *errs.Error with one of the
// Kind values below, so callers can branch on errors.Is / a type switch
// instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of the component that raised it.
type Kind string

// Error kinds, per spec §7.
const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindSizeLimitExceeded     Kind = "size_limit_exceeded"
	KindResourceLimitExceeded Kind = "resource_limit_exceeded"
	KindTimeout               Kind = "timeout"
	KindInvalidTransition     Kind = "invalid_transition"
	KindHookCancelled         Kind = "hook_cancelled"
	KindStepFailed            Kind = "step_failed"
	KindBranchFailed          Kind = "branch_failed"
	KindProviderError         Kind = "provider_error"
	KindStorageIO             Kind = "storage_io"
	KindSerialization         Kind = "serialization_error"
	KindPermissionDenied      Kind = "permission_denied"
	KindCircuitOpen           Kind = "circuit_open"
	KindTenantMismatch        Kind = "tenant_mismatch"
)

// Error is the concrete error type returned by core packages.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "artifact.Store"
	Key  string // an identifying key, redacted from user-visible messages where sensitive
	Err  error  // the wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) works without
// requiring callers to know Op or Err.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewWithKey constructs an *Error carrying an identifying key.
func NewWithKey(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// KindOf extracts the Kind from err, returning "" if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is is a convenience wrapper for errors.Is(err, &Error{Kind: kind}).
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
