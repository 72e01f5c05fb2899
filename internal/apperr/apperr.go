// Package apperr defines the error kinds surfaced by the core operations.
package apperr

import "errors"

// Kind is a machine-readable error kind.
type Kind string

const (
	KindUnknown       Kind = "UNKNOWN"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindNotFound      Kind = "NOT_FOUND"
	KindForbidden     Kind = "FORBIDDEN"
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	KindFeatureGated  Kind = "FEATURE_GATED"
	KindInvalid       Kind = "INVALID_ARGUMENT"
	KindConflict      Kind = "CONFLICT"
)

// Error is a domain error with a kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so ErrUnauthorized works with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

var ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "user not authenticated"}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
