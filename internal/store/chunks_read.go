package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/acbmem/agentmem/internal/fts"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/overlay"
	"github.com/acbmem/agentmem/internal/privacy"
)

const chunkColumns = `chunk_id, tenant_id, event_id, ts, kind, channel, sensitivity,
	tags, token_est, importance, text, scope, subject_type, subject_id, project_id`

// qualifiedChunkColumns is chunkColumns with an explicit chunks. prefix,
// needed once the query joins chunks_fts (which also has chunk_id/text
// columns) to avoid an ambiguous-column error.
const qualifiedChunkColumns = `chunks.chunk_id, chunks.tenant_id, chunks.event_id, chunks.ts, chunks.kind,
	chunks.channel, chunks.sensitivity, chunks.tags, chunks.token_est, chunks.importance, chunks.text,
	chunks.scope, chunks.subject_type, chunks.subject_id, chunks.project_id`

func scanChunkRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.Chunk, error) {
	var c model.Chunk
	var kind, channel, sensitivity, tagsRaw string
	var scope, subjectType, subjectID, projectID sql.NullString

	err := row.Scan(
		&c.ChunkID, &c.TenantID, &c.EventID, &c.TS, &kind, &channel, &sensitivity,
		&tagsRaw, &c.TokenEst, &c.Importance, &c.Text, &scope, &subjectType, &subjectID, &projectID,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = model.EventKind(kind)
	c.Channel = model.Channel(channel)
	c.Sensitivity = model.Sensitivity(sensitivity)
	c.Tags = scanTags(tagsRaw)
	c.Scope = ptrFromNull(scope)
	c.SubjectType = ptrFromNull(subjectType)
	c.SubjectID = ptrFromNull(subjectID)
	c.ProjectID = ptrFromNull(projectID)
	return &c, nil
}

// GetChunk fetches one raw (pre-overlay) chunk by ID within a tenant.
func (s *Store) GetChunk(tenantID, chunkID string) (*model.Chunk, error) {
	row := s.db.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE tenant_id = ? AND chunk_id = ?`, tenantID, chunkID)
	c, err := scanChunkRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return c, nil
}

// ChunkFilter narrows the candidate set before the overlay fold and
// lexical match are applied.
type ChunkFilter struct {
	Scope       *string
	SubjectType *string
	SubjectID   *string
	ProjectID   *string
}

// candidateChunks loads raw chunks for a tenant, applying the optional
// scope/subject/project filters at the SQL layer. When queryTokens is
// non-empty it narrows the scan with an FTS5 MATCH against chunks_fts
// before the remaining filters are applied, rather than scanning every
// chunk row for a tenant; the overlay fold afterward still re-checks the
// match against each chunk's effective (post-edit) text, since the FTS5
// index tracks stored text, not text amended by an approved edit.
func (s *Store) candidateChunks(tenantID string, f ChunkFilter, queryTokens []string) ([]model.Chunk, error) {
	var query string
	var args []interface{}

	if len(queryTokens) > 0 {
		query = `SELECT ` + qualifiedChunkColumns + ` FROM chunks JOIN chunks_fts ON chunks_fts.chunk_id = chunks.chunk_id
			WHERE chunks_fts MATCH ? AND chunks.tenant_id = ?`
		args = []interface{}{strings.Join(queryTokens, " "), tenantID}
	} else {
		query = `SELECT ` + chunkColumns + ` FROM chunks WHERE tenant_id = ?`
		args = []interface{}{tenantID}
	}

	if f.Scope != nil {
		query += " AND scope = ?"
		args = append(args, *f.Scope)
	}
	if f.SubjectType != nil {
		query += " AND subject_type = ?"
		args = append(args, *f.SubjectType)
	}
	if f.SubjectID != nil {
		query += " AND subject_id = ?"
		args = append(args, *f.SubjectID)
	}
	if f.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *f.ProjectID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate chunks: %w", err)
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// foldChunks loads approved edits for the given raw chunks and returns
// their effective views, dropping any that were retracted.
func (s *Store) foldChunks(tenantID string, raw []model.Chunk) ([]overlay.EffectiveChunk, error) {
	ids := make([]string, len(raw))
	for i, c := range raw {
		ids[i] = c.ChunkID
	}
	editsByTarget, err := s.ApprovedEditsForTargets(tenantID, model.TargetChunk, ids)
	if err != nil {
		return nil, err
	}

	out := make([]overlay.EffectiveChunk, 0, len(raw))
	for _, c := range raw {
		eff, ok := overlay.FoldChunk(c, editsByTarget[c.ChunkID])
		if !ok {
			continue
		}
		out = append(out, eff)
	}
	return out, nil
}

// SearchParams configures search_chunks (spec section 4.E rule 2).
type SearchParams struct {
	Scope             *string
	SubjectType       *string
	SubjectID         *string
	ProjectID         *string
	Channel           *model.Channel
	IncludeQuarantined bool
	Limit             int
}

// SearchChunks implements the search_chunks read primitive: an FTS5
// MATCH against chunks_fts narrows the candidate scan to the query's
// terms, tenant filter, sensitivity admissibility, a lexical AND-match
// re-check on effective (post-edit) text, quarantine/blocked-channel
// exclusion, scope/subject/project filters, ordered by
// (effective_importance DESC, ts DESC, chunk_id ASC).
func (s *Store) SearchChunks(tenantID, queryText string, p SearchParams) ([]overlay.EffectiveChunk, error) {
	tokens := fts.Tokenize(queryText)

	raw, err := s.candidateChunks(tenantID, ChunkFilter{
		Scope: p.Scope, SubjectType: p.SubjectType, SubjectID: p.SubjectID, ProjectID: p.ProjectID,
	}, tokens)
	if err != nil {
		return nil, err
	}

	effective, err := s.foldChunks(tenantID, raw)
	if err != nil {
		return nil, err
	}

	var allowed map[model.Sensitivity]bool
	if p.Channel != nil {
		allowed = privacy.AllowedSensitivity(*p.Channel)
	}

	filtered := effective[:0]
	for _, c := range effective {
		if allowed != nil && !allowed[c.Sensitivity] {
			continue
		}
		if c.IsQuarantined && !p.IncludeQuarantined {
			continue
		}
		if p.Channel != nil && c.BlockedChannels[*p.Channel] {
			continue
		}
		if len(tokens) > 0 && !fts.MatchesAll(c.EffectiveText, tokens) {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].EffectiveImportance != filtered[j].EffectiveImportance {
			return filtered[i].EffectiveImportance > filtered[j].EffectiveImportance
		}
		if !filtered[i].TS.Equal(filtered[j].TS) {
			return filtered[i].TS.After(filtered[j].TS)
		}
		return filtered[i].ChunkID < filtered[j].ChunkID
	})

	limit := p.Limit
	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	return filtered[:limit], nil
}

// TimelineEntry is a chunk rendered relative to a timeline center.
type TimelineEntry struct {
	overlay.EffectiveChunk
	DistanceSeconds float64
}

// GetTimeline implements the get_timeline read primitive: chunks within
// +/- windowSeconds of the center chunk's ts, same tenant, ordered by
// |distance| ascending then ts ascending.
func (s *Store) GetTimeline(tenantID, centerChunkID string, windowSeconds int) ([]TimelineEntry, error) {
	center, err := s.GetChunk(tenantID, centerChunkID)
	if err != nil {
		return nil, err
	}

	lo := center.TS.Add(-time.Duration(windowSeconds) * time.Second)
	hi := center.TS.Add(time.Duration(windowSeconds) * time.Second)

	rows, err := s.db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE tenant_id = ? AND ts >= ? AND ts <= ?`, tenantID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline candidates: %w", err)
	}
	defer rows.Close()

	var raw []model.Chunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline chunk: %w", err)
		}
		raw = append(raw, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	effective, err := s.foldChunks(tenantID, raw)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(effective))
	for _, c := range effective {
		entries = append(entries, TimelineEntry{
			EffectiveChunk:  c,
			DistanceSeconds: c.TS.Sub(center.TS).Seconds(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ai, aj := abs(entries[i].DistanceSeconds), abs(entries[j].DistanceSeconds)
		if ai != aj {
			return ai < aj
		}
		return entries[i].TS.Before(entries[j].TS)
	})

	return entries, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
