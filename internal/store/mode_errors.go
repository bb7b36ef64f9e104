package store

import (
	"fmt"
)

// IncrementModeWindow records one classification outcome into a 5-minute
// bucket (windowStart, a unix timestamp pre-aligned by the caller) for a
// tenant/mode pair, backing the error-rate guardrail in internal/mode.
func (s *Store) IncrementModeWindow(tenantID, mode string, windowStart int64, isError bool) error {
	errInc := 0
	if isError {
		errInc = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO mode_error_counts (tenant_id, mode, window_start, errors, total)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(tenant_id, mode, window_start) DO UPDATE SET
			errors = errors + excluded.errors,
			total = total + 1`,
		tenantID, mode, windowStart, errInc,
	)
	if err != nil {
		return fmt.Errorf("failed to increment mode window: %w", err)
	}
	return nil
}

// ModeWindowCounts sums errors/total across windows in [sinceWindowStart, +inf)
// for a tenant/mode pair, giving the caller a sliding-window view built
// from fixed buckets.
func (s *Store) ModeWindowCounts(tenantID, mode string, sinceWindowStart int64) (errors int, total int, err error) {
	row := s.db.QueryRow(`
		SELECT COALESCE(SUM(errors), 0), COALESCE(SUM(total), 0)
		FROM mode_error_counts
		WHERE tenant_id = ? AND mode = ? AND window_start >= ?`,
		tenantID, mode, sinceWindowStart,
	)
	if scanErr := row.Scan(&errors, &total); scanErr != nil {
		return 0, 0, fmt.Errorf("failed to read mode window counts: %w", scanErr)
	}
	return errors, total, nil
}

// PruneModeWindowsBefore deletes buckets older than a cutoff, keeping the
// table from growing unbounded; call periodically from the same sweeper
// that expires capsules.
func (s *Store) PruneModeWindowsBefore(cutoffWindowStart int64) (int, error) {
	res, err := s.db.Exec(`DELETE FROM mode_error_counts WHERE window_start < ?`, cutoffWindowStart)
	if err != nil {
		return 0, fmt.Errorf("failed to prune mode windows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
