// Package ingest implements the Ingestion Engine (spec section 4.D):
// validates an incoming event, coerces its privacy classification,
// offloads oversize tool-result payloads to an artifact, extracts
// chunks and commits everything in a single transaction. Grounded on
// the transactional-write shape of the teacher's internal/memory/db.go
// helpers, generalized from a single insert to the event+artifact+chunk
// fan-out this pipeline needs.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/acbmem/agentmem/internal/chunk"
	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/privacy"
	"github.com/acbmem/agentmem/internal/store"
)

// ArtifactOffloadThreshold is the byte size past which a tool_result's
// excerpt_text is moved into an artifact and replaced with a truncated
// excerpt, per spec section 4.D step 2.
const ArtifactOffloadThreshold = 65536

// Engine wires the store used to persist ingested events.
type Engine struct {
	store *store.Store
}

// New constructs an Engine over an open store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Result reports what was written by a single RecordEvent call.
type Result struct {
	EventID    string
	ChunkIDs   []string
	ArtifactID string
}

// validate checks the required fields of an inbound event, per spec
// section 4.D step 0 and the Event invariants of section 3.
func validate(ev model.Event) error {
	if ev.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", store.ErrValidation)
	}
	if ev.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", store.ErrValidation)
	}
	if ev.Actor.ID == "" {
		return fmt.Errorf("%w: actor.id is required", store.ErrValidation)
	}
	switch ev.Actor.Type {
	case model.ActorHuman, model.ActorAgent, model.ActorTool:
	default:
		return fmt.Errorf("%w: actor.type %q is not recognized", store.ErrValidation, ev.Actor.Type)
	}
	switch ev.Kind {
	case model.KindMessage, model.KindToolCall, model.KindToolResult, model.KindDecision, model.KindTaskUpdate, model.KindArtifact:
	default:
		return fmt.Errorf("%w: kind %q is not recognized", store.ErrValidation, ev.Kind)
	}
	switch ev.Channel {
	case model.ChannelPrivate, model.ChannelPublic, model.ChannelTeam, model.ChannelAgent:
	default:
		return fmt.Errorf("%w: channel %q is not recognized", store.ErrValidation, ev.Channel)
	}
	if ev.TS.IsZero() {
		return fmt.Errorf("%w: ts is required", store.ErrValidation)
	}
	return nil
}

// coercePrivacy forces Sensitivity to secret when any string field of
// Content matches a secret pattern and redacts those fields in place,
// per spec section 4.D step 1. The coercion never lowers an already
// stricter sensitivity.
func coercePrivacy(ev *model.Event) bool {
	if !privacy.ContentContainsSecrets(ev.Content) {
		return false
	}
	privacy.RedactContent(&ev.Content)
	if ev.Sensitivity != model.SensitivitySecret {
		ev.Sensitivity = model.SensitivitySecret
	}
	return true
}

// offloadIfOversize moves a tool_result's excerpt_text to an artifact
// when it exceeds ArtifactOffloadThreshold bytes, replacing it with a
// truncated excerpt and recording the artifact reference, per spec
// section 4.D step 2. Returns the artifact to persist, or nil if no
// offload was needed.
func offloadIfOversize(ev *model.Event) *model.Artifact {
	if ev.Kind != model.KindToolResult {
		return nil
	}
	text := ev.Content.ExcerptText
	if len(text) <= ArtifactOffloadThreshold {
		return nil
	}

	artifactID := idgen.New(idgen.KindArtifact)
	a := &model.Artifact{
		ArtifactID: artifactID,
		TenantID:   ev.TenantID,
		Kind:       "tool_result_excerpt",
		Bytes:      []byte(text),
		Meta:       map[string]interface{}{"original_length": len(text)},
		Refs:       []string{ev.EventID},
		CreatedAt:  ev.TS,
	}

	ev.Content.ExcerptText = truncateRunes(text, ArtifactOffloadThreshold)
	ev.Content.Truncated = true
	ev.Content.ArtifactID = artifactID
	return a
}

// truncateRunes trims s to at most n bytes without splitting a
// multi-byte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := []byte(s)[:n]
	for len(b) > 0 && !utf8.RuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return string(b)
}

// RecordEvent implements the Ingestion Engine's recordEvent operation:
// validate, coerce privacy, offload oversize payloads, extract chunks,
// and commit all writes atomically. ev.EventID is assigned here if
// empty.
func (e *Engine) RecordEvent(ctx context.Context, ev model.Event) (*Result, error) {
	if ev.EventID == "" {
		ev.EventID = idgen.New(idgen.KindEvent)
	}
	if err := validate(ev); err != nil {
		return nil, err
	}

	coercePrivacy(&ev)
	artifact := offloadIfOversize(&ev)
	chunks := chunk.Extract(ev)

	res := &Result{EventID: ev.EventID}

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.InsertEventTx(tx, ev); err != nil {
			return err
		}
		if artifact != nil {
			if err := store.InsertArtifactTx(tx, *artifact); err != nil {
				return err
			}
			res.ArtifactID = artifact.ArtifactID
		}
		for _, c := range chunks {
			if err := store.InsertChunkTx(tx, c); err != nil {
				return err
			}
			res.ChunkIDs = append(res.ChunkIDs, c.ChunkID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
