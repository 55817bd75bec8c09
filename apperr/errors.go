// Package apperr defines the error taxonomy surfaced to API callers.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers and maps it to an HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidFormat
	KindInvalidRequest
	KindConflict
	KindUnauthorized
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid_format"
	case KindInvalidRequest:
		return "invalid_request"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidFormat, KindInvalidRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified, user-facing error. Fields and Values name the
// offending inputs so clients can render field-level messages.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Values  []string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus honours an explicit status override, otherwise the kind's default.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.HTTPStatus()
}

// WithField attaches an offending field and its value.
func (e *Error) WithField(field, value string) *Error {
	e.Fields = append(e.Fields, field)
	e.Values = append(e.Values, value)
	return e
}

// WithStatus overrides the HTTP status derived from the kind.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// New builds a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds a classified error around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func InvalidFormat(msg string) *Error  { return New(KindInvalidFormat, msg) }
func InvalidRequest(msg string) *Error { return New(KindInvalidRequest, msg) }
func Conflict(msg string) *Error       { return New(KindConflict, msg) }
func Unauthorized(msg string) *Error   { return New(KindUnauthorized, msg) }

// Upstream wraps an identity-provider failure that has no specific mapping.
// msg is the provider's own text, passed through to the caller.
func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: cause}
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
