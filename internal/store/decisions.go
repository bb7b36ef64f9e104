package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/overlay"
)

// InsertDecision persists a new decision.
func (s *Store) InsertDecision(d model.Decision) error {
	rationaleJSON, err := json.Marshal(d.Rationale)
	if err != nil {
		return fmt.Errorf("failed to marshal rationale: %w", err)
	}
	refsJSON, err := json.Marshal(d.Refs)
	if err != nil {
		return fmt.Errorf("failed to marshal refs: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO decisions (decision_id, tenant_id, ts, decision, rationale, status, refs, scope, subject, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.TenantID, d.TS, d.Decision, string(rationaleJSON), string(d.Status), string(refsJSON),
		nullStringPtr(d.Scope), nullStringPtr(d.Subject), nullStringPtr(d.ProjectID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

func scanDecisionRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.Decision, error) {
	var d model.Decision
	var status, rationaleRaw, refsRaw string
	var scope, subject, projectID sql.NullString

	err := row.Scan(&d.DecisionID, &d.TenantID, &d.TS, &d.Decision, &rationaleRaw, &status, &refsRaw, &scope, &subject, &projectID)
	if err != nil {
		return nil, err
	}
	d.Status = model.DecisionStatus(status)
	json.Unmarshal([]byte(rationaleRaw), &d.Rationale)
	d.Refs = scanRefs(refsRaw)
	d.Scope = ptrFromNull(scope)
	d.Subject = ptrFromNull(subject)
	d.ProjectID = ptrFromNull(projectID)
	return &d, nil
}

const decisionColumns = `decision_id, tenant_id, ts, decision, rationale, status, refs, scope, subject, project_id`

// GetDecision fetches one raw decision by ID within a tenant.
func (s *Store) GetDecision(tenantID, decisionID string) (*model.Decision, error) {
	row := s.db.QueryRow(`SELECT `+decisionColumns+` FROM decisions WHERE tenant_id = ? AND decision_id = ?`, tenantID, decisionID)
	d, err := scanDecisionRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

// ActiveEffectiveDecision pairs an effective decision with its computed
// precedence for the ordering rule of spec section 4.E rule 4.
type ActiveEffectiveDecision struct {
	overlay.EffectiveDecision
	Precedence int
}

// GetActiveDecisions implements the get_active_decisions read primitive:
// status=active decisions ordered by (precedence DESC, ts DESC).
func (s *Store) GetActiveDecisions(tenantID string) ([]ActiveEffectiveDecision, error) {
	rows, err := s.db.Query(`SELECT `+decisionColumns+` FROM decisions WHERE tenant_id = ? AND status = ?`, tenantID, string(model.DecisionActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active decisions: %w", err)
	}
	defer rows.Close()

	var raw []model.Decision
	for rows.Next() {
		d, err := scanDecisionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		raw = append(raw, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, len(raw))
	for i, d := range raw {
		ids[i] = d.DecisionID
	}
	editsByTarget, err := s.ApprovedEditsForTargets(tenantID, model.TargetDecision, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ActiveEffectiveDecision, 0, len(raw))
	for _, d := range raw {
		eff, ok := overlay.FoldDecision(d, editsByTarget[d.DecisionID])
		if !ok {
			continue
		}
		out = append(out, ActiveEffectiveDecision{EffectiveDecision: eff, Precedence: d.Precedence()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Precedence != out[j].Precedence {
			return out[i].Precedence > out[j].Precedence
		}
		return out[i].TS.After(out[j].TS)
	})

	return out, nil
}
