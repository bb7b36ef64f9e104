package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/acbmem/agentmem/internal/acb"
	"github.com/acbmem/agentmem/internal/capsule"
	"github.com/acbmem/agentmem/internal/editservice"
	"github.com/acbmem/agentmem/internal/graph"
	"github.com/acbmem/agentmem/internal/ingest"
	"github.com/acbmem/agentmem/internal/mode"
	"github.com/acbmem/agentmem/internal/store"
)

var errUnauthorized = errors.New("unauthorized")

func stubAuth(tenantID, actorID string) AuthResolver {
	return func(r *http.Request) (Identity, error) {
		if r.Header.Get("Authorization") == "" {
			return Identity{}, errUnauthorized
		}
		return Identity{TenantID: tenantID, ActorID: actorID}, nil
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	caps := capsule.New(s)
	rates := mode.NewErrorRateTracker(s)
	return NewServer(Deps{
		Store:    s,
		Ingest:   ingest.New(s),
		ACB:      acb.New(s, caps, rates, nil),
		Capsules: caps,
		Graph:    graph.New(s),
		Edits:    editservice.New(s),
		Auth:     stubAuth("tenant-1", "agent-1"),
	})
}

func doRequest(srv *Server, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer anything")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateEventRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(srv, http.MethodPost, "/events", map[string]interface{}{}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without auth, got %d", rec.Code)
	}
}

func TestHandleCreateEventSucceeds(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]interface{}{
		"session_id": "sess-1",
		"channel":    "private",
		"actor":      map[string]string{"type": "agent", "id": "agent-1"},
		"kind":       "message",
		"content":    map[string]string{"text": "hello world"},
	}
	rec := doRequest(srv, http.MethodPost, "/events", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if out["EventID"] == "" || out["EventID"] == nil {
		t.Error("expected a non-empty EventID in the response")
	}
}

func TestHandleCreateEventRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString("not json"))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON body, got %d", rec.Code)
	}
}

func TestHandleBuildACBBroadcastsAndReturnsResponse(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]interface{}{
		"session":    "sess-1",
		"agent":      "agent-1",
		"channel":    "private",
		"intent":     "task",
		"query_text": "ship it",
	}
	rec := doRequest(srv, http.MethodPost, "/acb/build", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp acb.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ACBID == "" {
		t.Error("expected a non-empty acb_id")
	}
}

func TestHandleCapsuleLifecycle(t *testing.T) {
	srv := newTestServer(t)

	createBody := map[string]interface{}{
		"scope":    "global",
		"ttl_days": 3,
	}
	rec := doRequest(srv, http.MethodPost, "/capsules", createBody, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating capsule, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &created)
	capsuleID, _ := created["CapsuleID"].(string)
	if capsuleID == "" {
		t.Fatal("expected a CapsuleID in the create response")
	}

	rec = doRequest(srv, http.MethodGet, "/capsules/"+capsuleID, nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 getting capsule, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodDelete, "/capsules/"+capsuleID, nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 revoking capsule, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMemoryEditLifecycle(t *testing.T) {
	srv := newTestServer(t)

	evBody := map[string]interface{}{
		"session_id": "sess-1",
		"channel":    "private",
		"actor":      map[string]string{"type": "agent", "id": "agent-1"},
		"kind":       "message",
		"content":    map[string]string{"text": "Jon Doe"},
	}
	rec := doRequest(srv, http.MethodPost, "/events", evBody, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating event, got %d: %s", rec.Code, rec.Body.String())
	}
	var evResp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &evResp)
	chunkIDs, _ := evResp["ChunkIDs"].([]interface{})
	if len(chunkIDs) == 0 {
		t.Fatal("expected at least one chunk id from event creation")
	}
	chunkID := chunkIDs[0].(string)

	editBody := map[string]interface{}{
		"target_type": "chunk",
		"target_id":   chunkID,
		"op":          "amend",
		"patch":       map[string]interface{}{"text": "John Doe"},
		"reason":      "fix typo",
	}
	rec = doRequest(srv, http.MethodPost, "/memory-edits", editBody, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 proposing edit, got %d: %s", rec.Code, rec.Body.String())
	}
	var edit map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &edit)
	editID, _ := edit["EditID"].(string)
	if editID == "" {
		t.Fatal("expected an EditID in the propose response")
	}

	rec = doRequest(srv, http.MethodPost, "/memory-edits/"+editID+"/approve", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 approving edit, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected health to be reachable without auth, got %d", rec.Code)
	}
}
