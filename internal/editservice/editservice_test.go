package editservice

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
			Content:     model.Content{Text: "Jon Doe"},
			TS:          time.Now(),
		}
		if err := store.InsertEventTx(tx, ev); err != nil {
			return err
		}
		return store.InsertChunkTx(tx, model.Chunk{
			ChunkID:    chunkID,
			TenantID:   tenantID,
			EventID:    ev.EventID,
			TS:         time.Now(),
			Kind:       model.KindMessage,
			Channel:    model.ChannelPrivate,
			Importance: 0.5,
			Text:       "Jon Doe",
		})
	})
	if err != nil {
		t.Fatalf("seedChunk failed: %v", err)
	}
}

func TestProposeRejectsUnknownOp(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	seedChunk(t, s, "tenant-1", "chk_1")

	_, err := e.Propose(ProposeInput{
		TenantID:   "tenant-1",
		TargetType: model.TargetChunk,
		TargetID:   "chk_1",
		Op:         "unknown-op",
		ProposedBy: "agent-1",
	})
	if err == nil {
		t.Fatal("expected rejection of an unrecognized op")
	}
}

func TestProposeRejectsAmendWithoutPatch(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	seedChunk(t, s, "tenant-1", "chk_1")

	_, err := e.Propose(ProposeInput{
		TenantID:   "tenant-1",
		TargetType: model.TargetChunk,
		TargetID:   "chk_1",
		Op:         model.EditAmend,
		ProposedBy: "agent-1",
	})
	if err == nil {
		t.Fatal("expected amend without text or importance to be rejected")
	}
}

func TestProposeRejectsMissingTarget(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	_, err := e.Propose(ProposeInput{
		TenantID:   "tenant-1",
		TargetType: model.TargetChunk,
		TargetID:   "does-not-exist",
		Op:         model.EditRetract,
		ProposedBy: "agent-1",
	})
	if err == nil {
		t.Fatal("expected rejection when target chunk does not exist")
	}
}

func TestProposeApproveLifecycle(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	seedChunk(t, s, "tenant-1", "chk_1")

	text := "John Doe"
	edit, err := e.Propose(ProposeInput{
		TenantID:   "tenant-1",
		TargetType: model.TargetChunk,
		TargetID:   "chk_1",
		Op:         model.EditAmend,
		Patch:      model.EditPatch{Text: &text},
		ProposedBy: "agent-1",
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if edit.Status != model.EditProposed {
		t.Fatalf("expected proposed status, got %s", edit.Status)
	}

	approved, err := e.Approve("tenant-1", edit.EditID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != model.EditApproved {
		t.Errorf("expected approved status, got %s", approved.Status)
	}
	if approved.AppliedAt == nil {
		t.Error("expected applied_at to be set on approval")
	}
}

func TestApproveTwiceRejected(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	seedChunk(t, s, "tenant-1", "chk_1")

	edit, err := e.Propose(ProposeInput{
		TenantID:   "tenant-1",
		TargetType: model.TargetChunk,
		TargetID:   "chk_1",
		Op:         model.EditRetract,
		ProposedBy: "agent-1",
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if _, err := e.Approve("tenant-1", edit.EditID); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}
	if _, err := e.Approve("tenant-1", edit.EditID); err == nil {
		t.Fatal("expected second approve of an already-approved edit to be rejected")
	}
}
