package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so the API layer can map it to a response
// without inspecting message text.
type Kind string

const (
	NotFound          Kind = "not_found"
	Validation        Kind = "validation"
	CorruptState      Kind = "corrupt_state"
	MissingAsset      Kind = "missing_asset"
	InconsistentState Kind = "inconsistent_state"
	Upstream          Kind = "upstream"
)

type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or "" if err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool {
	return KindOf(err) == NotFound
}

// StatusCode maps an error to the HTTP status the API layer should send.
func StatusCode(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusBadRequest
	case MissingAsset, InconsistentState:
		return http.StatusConflict
	case Upstream:
		return http.StatusBadGateway
	case CorruptState:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
