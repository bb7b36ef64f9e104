package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/acbmem/agentmem/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertChunk(t *testing.T, s *Store, c model.Chunk) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		ev := model.Event{
			EventID:     c.EventID,
			TenantID:    c.TenantID,
			SessionID:   "sess-1",
			Channel:     c.Channel,
			Actor:       model.Actor{Type: model.ActorAgent, ID: "agent-1"},
			Kind:        c.Kind,
			Sensitivity: c.Sensitivity,
			Content:     model.Content{Text: c.Text},
			TS:          c.TS,
		}
		if err := InsertEventTx(tx, ev); err != nil {
			return err
		}
		return InsertChunkTx(tx, c)
	})
	if err != nil {
		t.Fatalf("insertChunk failed: %v", err)
	}
}

func TestHealthReportsConnectedAndCounts(t *testing.T) {
	s := openTestStore(t)
	insertChunk(t, s, model.Chunk{
		ChunkID: "c1", TenantID: "t1", EventID: "e1", TS: time.Now(),
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Text: "hi",
	})

	h, err := s.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !h.Connected {
		t.Error("expected Connected true")
	}
	if h.EventCount != 1 || h.ChunkCount != 1 {
		t.Errorf("expected one event and one chunk, got %+v", h)
	}
}

func TestSearchChunksFiltersBySensitivityAndQuery(t *testing.T) {
	s := openTestStore(t)
	insertChunk(t, s, model.Chunk{
		ChunkID: "c1", TenantID: "t1", EventID: "e1", TS: time.Now(),
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Sensitivity: model.SensitivityHigh,
		Text: "the migration rollback plan", Importance: 0.5,
	})
	insertChunk(t, s, model.Chunk{
		ChunkID: "c2", TenantID: "t1", EventID: "e2", TS: time.Now(),
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Sensitivity: model.SensitivityNone,
		Text: "totally unrelated content", Importance: 0.5,
	})

	publicChannel := model.ChannelPublic
	results, err := s.SearchChunks("t1", "migration rollback", SearchParams{Channel: &publicChannel})
	if err != nil {
		t.Fatalf("SearchChunks failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected the high-sensitivity chunk to be excluded from a public-channel search, got %d results", len(results))
	}

	privateChannel := model.ChannelPrivate
	results, err = s.SearchChunks("t1", "migration rollback", SearchParams{Channel: &privateChannel})
	if err != nil {
		t.Fatalf("SearchChunks failed: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Errorf("expected only c1 to match the query on the private channel, got %+v", results)
	}
}

func TestSearchChunksOrdersByImportanceThenRecency(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	insertChunk(t, s, model.Chunk{
		ChunkID: "low", TenantID: "t1", EventID: "e1", TS: now,
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Text: "shared term", Importance: 0.2,
	})
	insertChunk(t, s, model.Chunk{
		ChunkID: "high", TenantID: "t1", EventID: "e2", TS: now,
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Text: "shared term", Importance: 0.9,
	})

	results, err := s.SearchChunks("t1", "shared term", SearchParams{})
	if err != nil {
		t.Fatalf("SearchChunks failed: %v", err)
	}
	if len(results) != 2 || results[0].ChunkID != "high" {
		t.Errorf("expected the higher-importance chunk first, got %+v", results)
	}
}

func TestGetTimelineOrdersByDistance(t *testing.T) {
	s := openTestStore(t)
	center := time.Now()
	insertChunk(t, s, model.Chunk{
		ChunkID: "center", TenantID: "t1", EventID: "e1", TS: center,
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Text: "center",
	})
	insertChunk(t, s, model.Chunk{
		ChunkID: "near", TenantID: "t1", EventID: "e2", TS: center.Add(5 * time.Second),
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Text: "near",
	})
	insertChunk(t, s, model.Chunk{
		ChunkID: "far", TenantID: "t1", EventID: "e3", TS: center.Add(50 * time.Second),
		Kind: model.KindMessage, Channel: model.ChannelPrivate, Text: "far",
	})

	entries, err := s.GetTimeline("t1", "center", 60)
	if err != nil {
		t.Fatalf("GetTimeline failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected all three chunks within the window, got %d", len(entries))
	}
	if entries[0].ChunkID != "center" || entries[1].ChunkID != "near" || entries[2].ChunkID != "far" {
		t.Errorf("expected ordering center, near, far by distance, got %v", []string{entries[0].ChunkID, entries[1].ChunkID, entries[2].ChunkID})
	}
}

func TestCapsuleStatusTransitionAndSweep(t *testing.T) {
	s := openTestStore(t)
	c := model.Capsule{
		CapsuleID: "cap1", TenantID: "t1", Scope: model.CapsuleGlobal, AuthorAgentID: "agent-1",
		Status: model.CapsuleActive, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := s.InsertCapsule(c); err != nil {
		t.Fatalf("InsertCapsule failed: %v", err)
	}

	n, err := s.SweepExpiredCapsulesAllTenants()
	if err != nil {
		t.Fatalf("SweepExpiredCapsulesAllTenants failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 capsule swept, got %d", n)
	}

	got, err := s.GetCapsuleRaw("t1", "cap1")
	if err != nil {
		t.Fatalf("GetCapsuleRaw failed: %v", err)
	}
	if got.Status != model.CapsuleExpired {
		t.Errorf("expected expired status after sweep, got %s", got.Status)
	}
}

func TestGetActiveDecisionsOrdersByPrecedenceThenRecency(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	if err := s.InsertDecision(model.Decision{
		DecisionID: "d1", TenantID: "t1", TS: now, Decision: "use postgres", Status: model.DecisionActive,
	}); err != nil {
		t.Fatalf("InsertDecision failed: %v", err)
	}
	if err := s.InsertDecision(model.Decision{
		DecisionID: "d2", TenantID: "t1", TS: now.Add(-time.Hour), Decision: "use redis", Status: model.DecisionActive,
	}); err != nil {
		t.Fatalf("InsertDecision failed: %v", err)
	}

	decisions, err := s.GetActiveDecisions("t1")
	if err != nil {
		t.Fatalf("GetActiveDecisions failed: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected two active decisions, got %d", len(decisions))
	}
	if decisions[0].DecisionID != "d1" {
		t.Errorf("expected the more recent decision first, got %s", decisions[0].DecisionID)
	}
}

func TestPruneModeWindowsBeforeRemovesOldBuckets(t *testing.T) {
	s := openTestStore(t)
	if err := s.IncrementModeWindow("t1", "TASK", 1000, false); err != nil {
		t.Fatalf("IncrementModeWindow failed: %v", err)
	}
	if err := s.IncrementModeWindow("t1", "TASK", 2000, true); err != nil {
		t.Fatalf("IncrementModeWindow failed: %v", err)
	}

	n, err := s.PruneModeWindowsBefore(1500)
	if err != nil {
		t.Fatalf("PruneModeWindowsBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one bucket pruned, got %d", n)
	}

	errs, total, err := s.ModeWindowCounts("t1", "TASK", 0)
	if err != nil {
		t.Fatalf("ModeWindowCounts failed: %v", err)
	}
	if total != 1 || errs != 1 {
		t.Errorf("expected only the surviving bucket to remain, got errors=%d total=%d", errs, total)
	}
}

func TestGetChunkNotFoundReturnsSentinel(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetChunk("t1", "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
