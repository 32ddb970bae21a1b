// Package fault defines the error taxonomy shared by all Voxbridge
// components.
//
// Domain code returns [*Error] values tagged with a [Kind]; only the gateway
// translates kinds into HTTP status codes. This keeps transport concerns out
// of the classifier, broker, and stores while still letting every surfaced
// error carry a stable, loggable kind tag.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure. Kinds are stable API: they appear in
// logs, error envelopes, and client-visible responses.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindExpiredCredentials Kind = "expired_credentials"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindClassifierDown     Kind = "classifier_unavailable"
	KindContextStoreDown   Kind = "context_store_unavailable"
	KindToolUnknown        Kind = "unknown_tool"
	KindToolStopped        Kind = "tool_unavailable"
	KindUnsupportedCommand Kind = "unsupported_command"
	KindToolError          Kind = "tool_error"
	KindTimeout            Kind = "timeout"
	KindWorkflowStepFailed Kind = "workflow_step_failed"
	KindSessionLost        Kind = "session_lost"
	KindInternal           Kind = "internal_error"
)

// Error is a domain error carrying a [Kind], the originating component, and
// a human-readable message. It wraps an optional underlying cause.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// New creates an [*Error] with the given kind, component, and message.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Newf creates an [*Error] with a formatted message.
func Newf(kind Kind, component, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an [*Error] wrapping cause. A nil cause returns nil.
func Wrap(kind Kind, component, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Message: message, Err: cause}
}

// KindOf extracts the [Kind] from err. Errors outside the taxonomy map to
// [KindInternal]; a nil error has no kind and returns the empty string.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a [Kind] to the status code the gateway surfaces.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusUnprocessableEntity
	case KindInvalidCredentials, KindExpiredCredentials:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindClassifierDown, KindContextStoreDown, KindToolUnknown, KindToolStopped, KindUnsupportedCommand:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
