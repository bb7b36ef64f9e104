package capsule

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChunk(t *testing.T, s *store.Store, tenantID, chunkID string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		ev := model.Event{
			EventID:     "evt_" + chunkID,
			TenantID:    tenantID,
			SessionID:   "sess-1",
			Channel:     model.ChannelPrivate,
			Actor:       model.Actor{Type: model.ActorAgent, ID: "agent-1"},
			Kind:        model.KindMessage,
			Sensitivity: model.SensitivityNone,
			Content:     model.Content{Text: "hello"},
			TS:          time.Now(),
		}
		if err := store.InsertEventTx(tx, ev); err != nil {
			return err
		}
		return store.InsertChunkTx(tx, model.Chunk{
			ChunkID:  chunkID,
			TenantID: tenantID,
			EventID:  ev.EventID,
			TS:       time.Now(),
			Kind:     model.KindMessage,
			Channel:  model.ChannelPrivate,
			Text:     "hello",
		})
	})
	if err != nil {
		t.Fatalf("seedChunk failed: %v", err)
	}
}

func TestCreateCapsuleValidatesMembership(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	_, err := e.CreateCapsule(context.Background(), CreateInput{
		TenantID:      "tenant-1",
		AuthorAgentID: "agent-1",
		Scope:         model.CapsuleSession,
		Items:         model.CapsuleItems{ChunkIDs: []string{"missing-chunk"}},
		TTLDays:       1,
	})
	if err == nil {
		t.Fatal("expected error referencing a chunk outside the tenant")
	}
}

func TestCreateCapsuleRejectsCrossTenantChunk(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	seedChunk(t, s, "tenant-other", "chk_1")

	_, err := e.CreateCapsule(context.Background(), CreateInput{
		TenantID:      "tenant-1",
		AuthorAgentID: "agent-1",
		Scope:         model.CapsuleSession,
		Items:         model.CapsuleItems{ChunkIDs: []string{"chk_1"}},
		TTLDays:       1,
	})
	if err == nil {
		t.Fatal("expected error referencing a chunk belonging to a different tenant")
	}
}

func TestCreateCapsuleSucceeds(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	seedChunk(t, s, "tenant-1", "chk_1")

	c, err := e.CreateCapsule(context.Background(), CreateInput{
		TenantID:         "tenant-1",
		AuthorAgentID:    "agent-1",
		Scope:            model.CapsuleSession,
		AudienceAgentIDs: []string{"agent-2"},
		Items:            model.CapsuleItems{ChunkIDs: []string{"chk_1"}},
		TTLDays:          3,
	})
	if err != nil {
		t.Fatalf("CreateCapsule failed: %v", err)
	}
	if c.Status != model.CapsuleActive {
		t.Errorf("expected active status, got %s", c.Status)
	}
}

func TestGetCapsuleAudienceGating(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	c, err := e.CreateCapsule(context.Background(), CreateInput{
		TenantID:         "tenant-1",
		AuthorAgentID:    "author",
		Scope:            model.CapsuleUser,
		AudienceAgentIDs: []string{"member"},
		TTLDays:          1,
	})
	if err != nil {
		t.Fatalf("CreateCapsule failed: %v", err)
	}

	if _, err := e.GetCapsule("tenant-1", c.CapsuleID, "member"); err != nil {
		t.Errorf("audience member should see the capsule: %v", err)
	}
	if _, err := e.GetCapsule("tenant-1", c.CapsuleID, "author"); err != nil {
		t.Errorf("author should see the capsule: %v", err)
	}
	if _, err := e.GetCapsule("tenant-1", c.CapsuleID, "stranger"); err == nil {
		t.Error("a non-audience requester should not see the capsule")
	}
}

func TestRevokeCapsuleIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	c, err := e.CreateCapsule(context.Background(), CreateInput{
		TenantID:      "tenant-1",
		AuthorAgentID: "author",
		Scope:         model.CapsuleGlobal,
		TTLDays:       1,
	})
	if err != nil {
		t.Fatalf("CreateCapsule failed: %v", err)
	}

	if err := e.RevokeCapsule("tenant-1", c.CapsuleID); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	if err := e.RevokeCapsule("tenant-1", c.CapsuleID); err != nil {
		t.Fatalf("second revoke should be idempotent, got: %v", err)
	}
}

func TestCreateCapsuleRejectsShortTTL(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	_, err := e.CreateCapsule(context.Background(), CreateInput{
		TenantID:      "tenant-1",
		AuthorAgentID: "author",
		Scope:         model.CapsuleGlobal,
		TTLDays:       0,
	})
	if err == nil {
		t.Fatal("expected validation error for ttl_days below minimum")
	}
}
