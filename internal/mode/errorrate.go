package mode

import (
	"time"

	"github.com/acbmem/agentmem/internal/store"
)

// WindowSize is the sliding-window width for the mode error-rate
// guardrail, resolved from the open question in spec section 9: a
// 5-minute window, persisted so the guardrail survives process
// restarts (see DESIGN.md).
const WindowSize = 5 * time.Minute

// bucketWidth is the fixed-bucket granularity the sliding window is
// built from; windows are aggregated over buckets >= the cutoff rather
// than tracked as one continuously-sliding counter.
const bucketWidth = WindowSize

// ErrorRateTracker persists per-tenant, per-mode classification outcomes
// and reports the current error rate over the sliding window.
type ErrorRateTracker struct {
	store *store.Store
}

// NewErrorRateTracker constructs a tracker over an open store.
func NewErrorRateTracker(s *store.Store) *ErrorRateTracker {
	return &ErrorRateTracker{store: s}
}

func bucketStart(t time.Time) int64 {
	return t.Unix() / int64(bucketWidth.Seconds()) * int64(bucketWidth.Seconds())
}

// Record increments the (tenant, mode) window counter for the current
// bucket, marking whether this classification was an error (e.g. the
// guardrail fired, or a downstream failure was attributed to this
// mode).
func (t *ErrorRateTracker) Record(tenantID string, m Mode, isError bool) error {
	return t.store.IncrementModeWindow(tenantID, string(m), bucketStart(time.Now()), isError)
}

// Rate returns the error rate over the trailing sliding window for
// (tenant, mode): errors/total, or 0 when there is no data.
func (t *ErrorRateTracker) Rate(tenantID string, m Mode) (float64, error) {
	since := bucketStart(time.Now().Add(-WindowSize))
	errors, total, err := t.store.ModeWindowCounts(tenantID, string(m), since)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(errors) / float64(total), nil
}

// Prune deletes buckets older than the sliding window, bounding table
// growth; call from the same periodic sweep that expires capsules.
func (t *ErrorRateTracker) Prune() (int, error) {
	cutoff := bucketStart(time.Now().Add(-WindowSize))
	return t.store.PruneModeWindowsBefore(cutoff)
}
