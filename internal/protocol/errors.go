package protocol

import "fmt"

// ErrorKind enumerates the taxonomy of client-observable errors (§7).
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthorization  ErrorKind = "authorization"
	KindRateLimit      ErrorKind = "rate_limit"
	KindNotFound       ErrorKind = "not_found"
	KindUnavailable    ErrorKind = "unavailable"
	KindSession        ErrorKind = "session"
	KindInternal       ErrorKind = "internal"
)

// Error is a protocol-level failure that is reported to the offending
// client and never mutates registry state.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewAuthorizationError(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NewRateLimitError(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimit, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewUnavailableError(format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

func NewSessionError(format string, args ...any) *Error {
	return &Error{Kind: KindSession, Message: fmt.Sprintf(format, args...)}
}

func NewInternalError(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// AsProtocolError unwraps err into a *Error, synthesizing an
// InternalError for anything that isn't already one — the router's
// fault envelope relies on this to always have something to send back.
func AsProtocolError(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return NewInternalError("%v", err)
}
