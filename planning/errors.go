/*
errors.go - Centralized error kinds for the planning engine

PURPOSE:
  Every failure surfaced to a caller is a single kind plus a message.
  Engines wrap the sentinels below with operation context; the API layer
  maps kinds to HTTP status codes.

ERROR KINDS:
  not_connected        Operation attempted before a credential is established
  unknown_entity       Module/dimension/engine/version id not in schema
  malformed_identifier Workspace id or row id not in the expected form
  upstream_failure     Foreign platform returned an error or unusable payload
  invalid_request      Request fails validation (page, pageSize, operator)
  not_editable         Per-write validation (collected, never fatal)

USAGE:
  if errors.Is(err, planning.ErrUnknownEntity) { ... }
  kind := planning.KindOf(err)

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status
  - write.go: Per-write validation errors
*/
package planning

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotConnected        = errors.New("not connected")
	ErrUnknownEntity       = errors.New("unknown entity")
	ErrMalformedIdentifier = errors.New("malformed identifier")
	ErrUpstream            = errors.New("upstream failure")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotEditable         = errors.New("line item not editable")
)

// Kind is the machine-readable error category.
type Kind string

const (
	KindNotConnected Kind = "not_connected"
	KindUnknown      Kind = "unknown_entity"
	KindMalformed    Kind = "malformed_identifier"
	KindUpstream     Kind = "upstream_failure"
	KindInvalid      Kind = "invalid_request"
	KindNotEditable  Kind = "not_editable"
	KindInternal     Kind = "internal"
)

var kindSentinels = map[Kind]error{
	KindNotConnected: ErrNotConnected,
	KindUnknown:      ErrUnknownEntity,
	KindMalformed:    ErrMalformedIdentifier,
	KindUpstream:     ErrUpstream,
	KindInvalid:      ErrInvalidRequest,
	KindNotEditable:  ErrNotEditable,
}

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotConnected(op, format string, args ...any) *Error {
	return newError(KindNotConnected, op, format, args...)
}

func UnknownEntity(op, entity, id string) *Error {
	return newError(KindUnknown, op, "%s %q not found", entity, id)
}

func Malformed(op, format string, args ...any) *Error {
	return newError(KindMalformed, op, format, args...)
}

func Invalid(op, format string, args ...any) *Error {
	return newError(KindInvalid, op, format, args...)
}

// Upstream wraps a failure of the foreign platform.
func Upstream(op string, cause error, format string, args ...any) *Error {
	e := newError(KindUpstream, op, format, args...)
	e.Err = cause
	return e
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrMalformedIdentifier) ||
		errors.Is(err, ErrNotEditable)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownEntity)
}
