package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/acbmem/agentmem/internal/model"
)

// InsertMemoryEdit persists a new edit, defaulting its status to
// proposed when unset. Only approved edits affect effective views.
func (s *Store) InsertMemoryEdit(e model.MemoryEdit) error {
	if e.Status == "" {
		e.Status = model.EditProposed
	}
	patchJSON, err := json.Marshal(e.Patch)
	if err != nil {
		return fmt.Errorf("failed to marshal edit patch: %w", err)
	}

	var appliedAt interface{}
	if e.AppliedAt != nil {
		appliedAt = *e.AppliedAt
	}

	_, err = s.db.Exec(`
		INSERT INTO memory_edits (
			edit_id, tenant_id, target_type, target_id, op, patch,
			reason, proposed_by, status, created_at, applied_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EditID, e.TenantID, string(e.TargetType), e.TargetID, string(e.Op), string(patchJSON),
		e.Reason, e.ProposedBy, string(e.Status), e.CreatedAt, appliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory edit: %w", err)
	}
	return nil
}

// SetMemoryEditStatus transitions an edit's approval status.
func (s *Store) SetMemoryEditStatus(tenantID, editID string, status model.EditStatus, appliedAt interface{}) error {
	res, err := s.db.Exec(`
		UPDATE memory_edits SET status = ?, applied_at = ?
		WHERE tenant_id = ? AND edit_id = ?`,
		string(status), appliedAt, tenantID, editID,
	)
	if err != nil {
		return fmt.Errorf("failed to update edit status: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMemoryEditRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.MemoryEdit, error) {
	var e model.MemoryEdit
	var targetType, op, status, patchRaw string
	var appliedAt sql.NullTime

	err := row.Scan(
		&e.EditID, &e.TenantID, &targetType, &e.TargetID, &op, &patchRaw,
		&e.Reason, &e.ProposedBy, &status, &e.CreatedAt, &appliedAt,
	)
	if err != nil {
		return nil, err
	}
	e.TargetType = model.TargetType(targetType)
	e.Op = model.EditOp(op)
	e.Status = model.EditStatus(status)
	json.Unmarshal([]byte(patchRaw), &e.Patch)
	if appliedAt.Valid {
		t := appliedAt.Time
		e.AppliedAt = &t
	}
	return &e, nil
}

const editColumns = `edit_id, tenant_id, target_type, target_id, op, patch, reason, proposed_by, status, created_at, applied_at`

// ApprovedEditsForTargets returns the approved edits for each of the
// given target IDs, keyed by target ID, ordered oldest-first so the
// overlay fold sees edits in application order.
func (s *Store) ApprovedEditsForTargets(tenantID string, targetType model.TargetType, targetIDs []string) (map[string][]model.MemoryEdit, error) {
	out := make(map[string][]model.MemoryEdit, len(targetIDs))
	if len(targetIDs) == 0 {
		return out, nil
	}

	placeholders := make([]byte, 0, len(targetIDs)*2)
	args := []interface{}{tenantID, string(targetType), string(model.EditApproved)}
	for i, id := range targetIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	query := `SELECT ` + editColumns + ` FROM memory_edits
		WHERE tenant_id = ? AND target_type = ? AND status = ? AND target_id IN (` + string(placeholders) + `)
		ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved edits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanMemoryEditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory edit: %w", err)
		}
		out[e.TargetID] = append(out[e.TargetID], *e)
	}
	return out, rows.Err()
}

// GetMemoryEdit fetches one edit by ID within a tenant.
func (s *Store) GetMemoryEdit(tenantID, editID string) (*model.MemoryEdit, error) {
	row := s.db.QueryRow(`SELECT `+editColumns+` FROM memory_edits WHERE tenant_id = ? AND edit_id = ?`, tenantID, editID)
	e, err := scanMemoryEditRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory edit: %w", err)
	}
	return e, nil
}
