// internal/errdefs/errdefs.go
// Package errdefs holds the error kinds shared by the workflow engine,
// the camera directory and the realtime channel, and maps them onto HTTP.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can tell failure modes apart.
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindInvalidState         Kind = "INVALID_STATE"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindUnauthenticated      Kind = "UNAUTHENTICATED"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindChannelUninitialized Kind = "CHANNEL_UNINITIALIZED"
	KindInternal             Kind = "INTERNAL"
)

// Sentinels for errors.Is; any *Error of the same kind matches.
var (
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState         = &Error{Kind: KindInvalidState, Message: "invalid state for operation"}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "caller not authorized"}
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrChannelUninitialized = &Error{Kind: KindChannelUninitialized, Message: "notification channel not initialized"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so wrapped and formatted errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...interface{}) error {
	return &Error{Kind: KindUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure (storage, encoding) with a message.
func Internal(err error, message string) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error onto the response status the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindChannelUninitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON envelope every failed API call answers with.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorBody(kind Kind, message string) ErrorBody {
	return ErrorBody{Error: ErrorDetail{Code: string(kind), Message: message}}
}
