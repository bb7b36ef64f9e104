package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/acbmem/agentmem/internal/store"
)

func TestClassifyWrappedError(t *testing.T) {
	e := New(KindConflict, "already revoked", nil)
	wrapped := fmt.Errorf("handler failed: %w", e)
	if got := Classify(wrapped); got != KindConflict {
		t.Errorf("expected KindConflict, got %s", got)
	}
}

func TestClassifyStoreSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{store.ErrValidation, KindValidation},
		{store.ErrNotFound, KindNotFound},
		{store.ErrConflict, KindConflict},
		{ErrRateLimited, KindRateLimited},
		{ErrAuthorization, KindAuthorization},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestStatusForErrorMapping(t *testing.T) {
	if got := StatusForError(store.ErrNotFound); got != http.StatusNotFound {
		t.Errorf("expected 404 for ErrNotFound, got %d", got)
	}
	if got := StatusForError(ErrRateLimited); got != http.StatusTooManyRequests {
		t.Errorf("expected 429 for ErrRateLimited, got %d", got)
	}
	if got := StatusForError(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("expected 500 for unrecognized error, got %d", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	e := New(KindStorage, "failed to insert", inner)
	if !errors.Is(e, inner) {
		t.Error("expected errors.Is to see through Unwrap to the inner error")
	}
}
