package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/acbmem/agentmem/internal/model"
)

// InsertEventTx persists an event, its optional artifact and its chunks
// inside a single transaction; callers provide the transaction so
// ingestion can atomically combine this with other writes.
func InsertEventTx(tx *sql.Tx, ev model.Event) error {
	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	contentJSON, err := json.Marshal(ev.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	refsJSON, err := json.Marshal(ev.Refs)
	if err != nil {
		return fmt.Errorf("failed to marshal refs: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO events (
			event_id, tenant_id, session_id, channel, actor_type, actor_id,
			kind, sensitivity, tags, content, refs,
			scope, subject_type, subject_id, project_id, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.TenantID, ev.SessionID, string(ev.Channel), string(ev.Actor.Type), ev.Actor.ID,
		string(ev.Kind), string(ev.Sensitivity), string(tagsJSON), string(contentJSON), string(refsJSON),
		nullStringPtr(ev.Scope), nullStringPtr(ev.SubjectType), nullStringPtr(ev.SubjectID), nullStringPtr(ev.ProjectID), ev.TS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// InsertArtifactTx persists an oversize payload artifact.
func InsertArtifactTx(tx *sql.Tx, a model.Artifact) error {
	metaJSON, err := json.Marshal(a.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact meta: %w", err)
	}
	refsJSON, err := json.Marshal(a.Refs)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact refs: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO artifacts (artifact_id, tenant_id, kind, bytes, meta, refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ArtifactID, a.TenantID, a.Kind, a.Bytes, string(metaJSON), string(refsJSON), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// InsertChunkTx persists a chunk derived from an event.
func InsertChunkTx(tx *sql.Tx, c model.Chunk) error {
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk tags: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO chunks (
			chunk_id, tenant_id, event_id, ts, kind, channel, sensitivity,
			tags, token_est, importance, text, scope, subject_type, subject_id, project_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChunkID, c.TenantID, c.EventID, c.TS, string(c.Kind), string(c.Channel), string(c.Sensitivity),
		string(tagsJSON), c.TokenEst, c.Importance, c.Text,
		nullStringPtr(c.Scope), nullStringPtr(c.SubjectType), nullStringPtr(c.SubjectID), nullStringPtr(c.ProjectID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction on the store's pool.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withTx(ctx, fn)
}

func scanTags(raw string) []string {
	var tags []string
	json.Unmarshal([]byte(raw), &tags)
	return tags
}

func scanRefs(raw string) []string {
	var refs []string
	json.Unmarshal([]byte(raw), &refs)
	return refs
}

// scanEventRow scans a single events row starting at the given columns
// order: event_id, tenant_id, session_id, channel, actor_type, actor_id,
// kind, sensitivity, tags, content, refs, scope, subject_type,
// subject_id, project_id, ts.
func scanEventRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.Event, error) {
	var ev model.Event
	var channel, actorType, kind, sensitivity string
	var tagsRaw, contentRaw, refsRaw string
	var scope, subjectType, subjectID, projectID sql.NullString

	err := row.Scan(
		&ev.EventID, &ev.TenantID, &ev.SessionID, &channel, &actorType, &ev.Actor.ID,
		&kind, &sensitivity, &tagsRaw, &contentRaw, &refsRaw,
		&scope, &subjectType, &subjectID, &projectID, &ev.TS,
	)
	if err != nil {
		return nil, err
	}

	ev.Channel = model.Channel(channel)
	ev.Actor.Type = model.ActorType(actorType)
	ev.Kind = model.EventKind(kind)
	ev.Sensitivity = model.Sensitivity(sensitivity)
	ev.Tags = scanTags(tagsRaw)
	ev.Refs = scanRefs(refsRaw)
	json.Unmarshal([]byte(contentRaw), &ev.Content)
	ev.Scope = ptrFromNull(scope)
	ev.SubjectType = ptrFromNull(subjectType)
	ev.SubjectID = ptrFromNull(subjectID)
	ev.ProjectID = ptrFromNull(projectID)

	return &ev, nil
}

const eventColumns = `event_id, tenant_id, session_id, channel, actor_type, actor_id,
	kind, sensitivity, tags, content, refs, scope, subject_type, subject_id, project_id, ts`

// GetEvent fetches one event by ID within a tenant.
func (s *Store) GetEvent(tenantID, eventID string) (*model.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE tenant_id = ? AND event_id = ?`, tenantID, eventID)
	ev, err := scanEventRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// RecentSessionEvents returns up to limit most-recent events for
// (tenant, session), newest first.
func (s *Store) RecentSessionEvents(tenantID, sessionID string, limit int) ([]model.Event, error) {
	rows, err := s.db.Query(`
		SELECT `+eventColumns+`
		FROM events
		WHERE tenant_id = ? AND session_id = ?
		ORDER BY ts DESC
		LIMIT ?`, tenantID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// GetArtifact fetches an artifact by ID within a tenant.
func (s *Store) GetArtifact(tenantID, artifactID string) (*model.Artifact, error) {
	var a model.Artifact
	var metaRaw, refsRaw string

	err := s.db.QueryRow(`
		SELECT artifact_id, tenant_id, kind, bytes, meta, refs, created_at
		FROM artifacts WHERE tenant_id = ? AND artifact_id = ?`,
		tenantID, artifactID,
	).Scan(&a.ArtifactID, &a.TenantID, &a.Kind, &a.Bytes, &metaRaw, &refsRaw, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	json.Unmarshal([]byte(metaRaw), &a.Meta)
	a.Refs = scanRefs(refsRaw)
	return &a, nil
}
