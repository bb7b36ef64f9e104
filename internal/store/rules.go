package store

import (
	"database/sql"
	"fmt"

	"github.com/acbmem/agentmem/internal/model"
)

// InsertRule persists a tenant-wide behavioral constraint.
func (s *Store) InsertRule(r model.Rule) error {
	_, err := s.db.Exec(`
		INSERT INTO rules (rule_id, tenant_id, content, scope, channel, priority, token_est)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RuleID, r.TenantID, r.Content, nullStringPtr(r.Scope), r.Channel, r.Priority, r.TokenEst,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// RulesForChannel returns a tenant's rules applicable to a channel (an
// exact channel match or the "all" wildcard), ordered by priority DESC,
// feeding the ACB rules section's greedy pack.
func (s *Store) RulesForChannel(tenantID string, channel model.Channel) ([]model.Rule, error) {
	rows, err := s.db.Query(`
		SELECT rule_id, tenant_id, content, scope, channel, priority, token_est
		FROM rules WHERE tenant_id = ? AND (channel = ? OR channel = 'all')
		ORDER BY priority DESC`,
		tenantID, string(channel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		var r model.Rule
		var scopeNull sql.NullString
		if err := rows.Scan(&r.RuleID, &r.TenantID, &r.Content, &scopeNull, &r.Channel, &r.Priority, &r.TokenEst); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Scope = ptrFromNull(scopeNull)
		out = append(out, r)
	}
	return out, rows.Err()
}
