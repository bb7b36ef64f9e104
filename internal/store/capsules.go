package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acbmem/agentmem/internal/model"
)

// InsertCapsule persists a new capsule.
func (s *Store) InsertCapsule(c model.Capsule) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal capsule items: %w", err)
	}
	audienceJSON, err := json.Marshal(c.AudienceAgentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal capsule audience: %w", err)
	}
	risksJSON, err := json.Marshal(c.Risks)
	if err != nil {
		return fmt.Errorf("failed to marshal capsule risks: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO capsules (
			capsule_id, tenant_id, scope, subject_type, subject_id, author_agent_id,
			audience_agents, items, risks, ttl_days, status, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CapsuleID, c.TenantID, string(c.Scope), nullStringPtr(c.SubjectType), nullStringPtr(c.SubjectID), c.AuthorAgentID,
		string(audienceJSON), string(itemsJSON), string(risksJSON), c.TTLDays, string(c.Status), c.CreatedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert capsule: %w", err)
	}
	return nil
}

const capsuleColumns = `capsule_id, tenant_id, scope, subject_type, subject_id, author_agent_id,
	audience_agents, items, risks, ttl_days, status, created_at, expires_at`

func scanCapsuleRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.Capsule, error) {
	var c model.Capsule
	var scope, status, audienceRaw, itemsRaw, risksRaw string
	var subjectType, subjectID sql.NullString

	err := row.Scan(
		&c.CapsuleID, &c.TenantID, &scope, &subjectType, &subjectID, &c.AuthorAgentID,
		&audienceRaw, &itemsRaw, &risksRaw, &c.TTLDays, &status, &c.CreatedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	c.Scope = model.CapsuleScope(scope)
	c.Status = model.CapsuleStatus(status)
	c.SubjectType = ptrFromNull(subjectType)
	c.SubjectID = ptrFromNull(subjectID)
	json.Unmarshal([]byte(audienceRaw), &c.AudienceAgentIDs)
	json.Unmarshal([]byte(itemsRaw), &c.Items)
	json.Unmarshal([]byte(risksRaw), &c.Risks)
	return &c, nil
}

// GetCapsuleRaw fetches a capsule by ID within a tenant regardless of
// status/expiry/audience; callers apply those checks (spec section 4.F).
func (s *Store) GetCapsuleRaw(tenantID, capsuleID string) (*model.Capsule, error) {
	row := s.db.QueryRow(`SELECT `+capsuleColumns+` FROM capsules WHERE tenant_id = ? AND capsule_id = ?`, tenantID, capsuleID)
	c, err := scanCapsuleRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capsule: %w", err)
	}
	return c, nil
}

// AvailableCapsules implements get_available_capsules: status=active,
// unexpired, agentID in audience, optional subject match.
func (s *Store) AvailableCapsules(tenantID, agentID string, subjectType, subjectID *string) ([]model.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules WHERE tenant_id = ? AND status = ? AND expires_at > ?`
	args := []interface{}{tenantID, string(model.CapsuleActive), time.Now()}

	if subjectType != nil {
		query += " AND subject_type = ?"
		args = append(args, *subjectType)
	}
	if subjectID != nil {
		query += " AND subject_id = ?"
		args = append(args, *subjectID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query available capsules: %w", err)
	}
	defer rows.Close()

	var out []model.Capsule
	for rows.Next() {
		c, err := scanCapsuleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capsule: %w", err)
		}
		if containsAgent(c.AudienceAgentIDs, agentID) {
			out = append(out, *c)
		}
	}
	return out, rows.Err()
}

func containsAgent(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// SetCapsuleStatus transitions a capsule's status if it is not already
// terminal; idempotent: a second call on an already-terminal capsule is
// a no-op and returns no error.
func (s *Store) SetCapsuleStatus(tenantID, capsuleID string, status model.CapsuleStatus) error {
	res, err := s.db.Exec(`
		UPDATE capsules SET status = ?
		WHERE tenant_id = ? AND capsule_id = ? AND status = ?`,
		string(status), tenantID, capsuleID, string(model.CapsuleActive),
	)
	if err != nil {
		return fmt.Errorf("failed to update capsule status: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		// Either already terminal (idempotent no-op) or missing; tell
		// which by checking existence.
		if _, err := s.GetCapsuleRaw(tenantID, capsuleID); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpiredCapsules transitions active capsules whose expires_at has
// passed to status=expired. Idempotent and safe to call concurrently;
// reads must still check expires_at directly rather than rely on this
// having run (spec section 4.F / 9).
func (s *Store) SweepExpiredCapsules(tenantID string) (int, error) {
	res, err := s.db.Exec(`
		UPDATE capsules SET status = ?
		WHERE tenant_id = ? AND status = ? AND expires_at < ?`,
		string(model.CapsuleExpired), tenantID, string(model.CapsuleActive), time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired capsules: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SweepExpiredCapsulesAllTenants runs the sweep across every tenant with
// at least one capsule, for the background sweeper's periodic pass.
func (s *Store) SweepExpiredCapsulesAllTenants() (int, error) {
	res, err := s.db.Exec(`
		UPDATE capsules SET status = ?
		WHERE status = ? AND expires_at < ?`,
		string(model.CapsuleExpired), string(model.CapsuleActive), time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired capsules: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
