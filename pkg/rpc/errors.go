package rpc

import "fmt"

// Kind classifies an Error so callers can branch on failure mode
// without string-matching Error().
type Kind string

const (
	KindVersionMismatch      Kind = "version_mismatch"
	KindAlreadyRegistered    Kind = "already_registered"
	KindDuplicateId          Kind = "duplicate_id"
	KindTransportError       Kind = "transport_error"
	KindWorkdirCreateFailed  Kind = "workdir_create_failed"
	KindStaleSubworkerSocket Kind = "stale_subworker_socket"
	KindServerDialFailed     Kind = "server_dial_failed"
	KindUnknownCapability    Kind = "unknown_capability"
	KindUnknownMethod        Kind = "unknown_method"
)

// Error is the common error type returned across every capability
// boundary. Kind lets callers branch programmatically; Error() always
// renders a human-readable message, and for KindVersionMismatch that
// message is guaranteed to contain the substring "Protocol mismatch".
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error of the given kind with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// VersionMismatch builds the version-mismatch error the external
// interface contract requires, with "Protocol mismatch" in its message.
func VersionMismatch(want, got uint32) *Error {
	return NewError(KindVersionMismatch, "Protocol mismatch: expected version %d, got %d", want, got)
}
