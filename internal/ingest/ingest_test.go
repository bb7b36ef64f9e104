package ingest

import (
	"context"
	"path/filepath"
	"strings"
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

func baseEvent() model.Event {
	return model.Event{
		TenantID:    "tenant-1",
		SessionID:   "sess-1",
		Channel:     model.ChannelPrivate,
		Actor:       model.Actor{Type: model.ActorAgent, ID: "agent-1"},
		Kind:        model.KindMessage,
		Sensitivity: model.SensitivityNone,
		Content:     model.Content{Text: "hello there"},
		TS:          time.Now(),
	}
}

func TestRecordEventAssignsIDAndChunk(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	res, err := e.RecordEvent(context.Background(), baseEvent())
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if res.EventID == "" {
		t.Error("expected an assigned event ID")
	}
	if len(res.ChunkIDs) != 1 {
		t.Errorf("expected one chunk extracted from a message event, got %d", len(res.ChunkIDs))
	}
}

func TestRecordEventRejectsMissingTenant(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	ev := baseEvent()
	ev.TenantID = ""
	if _, err := e.RecordEvent(context.Background(), ev); err == nil {
		t.Fatal("expected validation error for missing tenant_id")
	}
}

func TestRecordEventRejectsUnknownKind(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	ev := baseEvent()
	ev.Kind = "not-a-real-kind"
	if _, err := e.RecordEvent(context.Background(), ev); err == nil {
		t.Fatal("expected validation error for unrecognized kind")
	}
}

func TestRecordEventCoercesSecretToSensitivitySecret(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	ev := baseEvent()
	ev.Content.Text = "here is a key: sk-1234567890abcdef1234567890abcdef"

	res, err := e.RecordEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	chk, err := s.GetChunk("tenant-1", res.ChunkIDs[0])
	if err != nil {
		t.Fatalf("GetChunk failed: %v", err)
	}
	if chk.Sensitivity != model.SensitivitySecret {
		t.Errorf("expected chunk sensitivity secret after coercion, got %s", chk.Sensitivity)
	}
	if strings.Contains(chk.Text, "1234567890abcdef1234567890abcdef") {
		t.Error("expected the secret value to be redacted out of the stored chunk text")
	}
}

func TestRecordEventOffloadsOversizeToolResult(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	ev := baseEvent()
	ev.Kind = model.KindToolResult
	ev.Content = model.Content{ExcerptText: strings.Repeat("x", ArtifactOffloadThreshold+1)}

	res, err := e.RecordEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if res.ArtifactID == "" {
		t.Fatal("expected an artifact to be created for an oversize tool_result")
	}

	art, err := s.GetArtifact("tenant-1", res.ArtifactID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if len(art.Bytes) != ArtifactOffloadThreshold+1 {
		t.Errorf("expected the artifact to retain the full original length, got %d", len(art.Bytes))
	}
}

func TestRecordEventDoesNotOffloadAtThreshold(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	ev := baseEvent()
	ev.Kind = model.KindToolResult
	ev.Content = model.Content{ExcerptText: strings.Repeat("x", ArtifactOffloadThreshold)}

	res, err := e.RecordEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if res.ArtifactID != "" {
		t.Error("expected no artifact offload exactly at the threshold")
	}
}
