// Package apierr classifies errors into the kinds spec section 7 names
// and maps them onto HTTP status codes for internal/httpapi. It mirrors
// the plain sentinel-error style of internal/memory/*.go and the
// respondJSON/respondError helper pattern of the teacher's
// internal/server/handlers.go, generalized into a reusable mapping
// instead of one ad hoc switch per handler.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/acbmem/agentmem/internal/store"
)

// Kind names an error category from spec section 7.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindRateLimited   Kind = "rate_limited"
	KindStorage       Kind = "storage"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error wraps an underlying error with a classification kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified Error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ErrRateLimited is returned by internal/ratelimit when a key exceeds
// its fixed-window quota.
var ErrRateLimited = errors.New("apierr: rate limited")

// ErrAuthorization is returned when a requester is not permitted to see
// a record it otherwise resolved (wrong audience, tenant mismatch).
var ErrAuthorization = errors.New("apierr: authorization")

// Classify maps an error from any internal package onto a Kind,
// unwrapping sentinel errors from internal/store and internal/ratelimit.
// Unrecognized errors classify as Internal.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	switch {
	case errors.Is(err, store.ErrValidation):
		return KindValidation
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	default:
		return KindInternal
	}
}

// StatusFor maps a Kind to the HTTP status spec section 7 assigns it.
// Authorization defaults to 404 (to avoid existence disclosure); callers
// that need 403 instead pass KindAuthorization through their own check.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization, KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStorage, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// StatusForError classifies err and returns its HTTP status directly.
func StatusForError(err error) int {
	return StatusFor(Classify(err))
}
