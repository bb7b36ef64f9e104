package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/acbmem/agentmem/internal/acb"
	"github.com/acbmem/agentmem/internal/apierr"
	"github.com/acbmem/agentmem/internal/capsule"
	"github.com/acbmem/agentmem/internal/editservice"
	"github.com/acbmem/agentmem/internal/graph"
	"github.com/acbmem/agentmem/internal/model"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	status := apierr.StatusForError(err)
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) resolveIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, err := s.auth(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return Identity{}, false
	}
	return id, true
}

// eventInput is the wire shape of POST /events, per spec section 3's
// Event fields.
type eventInput struct {
	SessionID   string          `json:"session_id"`
	Channel     string          `json:"channel"`
	Actor       model.Actor     `json:"actor"`
	Kind        string          `json:"kind"`
	Sensitivity string          `json:"sensitivity"`
	Tags        []string        `json:"tags"`
	Content     model.Content   `json:"content"`
	Refs        []string        `json:"refs"`
	Scope       *string         `json:"scope,omitempty"`
	SubjectType *string         `json:"subject_type,omitempty"`
	SubjectID   *string         `json:"subject_id,omitempty"`
	ProjectID   *string         `json:"project_id,omitempty"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	if ok, retryAfter := s.eventLimit.Allow(id.TenantID); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{"error": "rate limited", "retry_after": retryAfter})
		return
	}

	var in eventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	sensitivity := in.Sensitivity
	if sensitivity == "" {
		sensitivity = string(model.SensitivityNone)
	}

	ev := model.Event{
		TenantID:    id.TenantID,
		SessionID:   in.SessionID,
		Channel:     model.Channel(in.Channel),
		Actor:       in.Actor,
		Kind:        model.EventKind(in.Kind),
		Sensitivity: model.Sensitivity(sensitivity),
		Tags:        in.Tags,
		Content:     in.Content,
		Refs:        in.Refs,
		Scope:       in.Scope,
		SubjectType: in.SubjectType,
		SubjectID:   in.SubjectID,
		ProjectID:   in.ProjectID,
		TS:          time.Now(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := s.ingest.RecordEvent(ctx, ev)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type acbInput struct {
	Session            string   `json:"session"`
	Agent              string   `json:"agent"`
	Channel            string   `json:"channel"`
	Intent             string   `json:"intent"`
	QueryText          string   `json:"query_text"`
	MaxTokens          *int     `json:"max_tokens,omitempty"`
	SubjectType        *string  `json:"subject_type,omitempty"`
	SubjectID          *string  `json:"subject_id,omitempty"`
	ProjectID          *string  `json:"project_id,omitempty"`
	IncludeCapsules    bool     `json:"include_capsules"`
	IncludeQuarantined bool     `json:"include_quarantined"`
}

func (s *Server) handleBuildACB(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	if ok, retryAfter := s.acbLimit.Allow(id.TenantID); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{"error": "rate limited", "retry_after": retryAfter})
		return
	}

	var in acbInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	req := acb.Request{
		TenantID:           id.TenantID,
		SessionID:          in.Session,
		AgentID:            in.Agent,
		Channel:            model.Channel(in.Channel),
		Intent:             in.Intent,
		QueryText:          in.QueryText,
		MaxTokens:          in.MaxTokens,
		SubjectType:        in.SubjectType,
		SubjectID:          in.SubjectID,
		ProjectID:          in.ProjectID,
		IncludeCapsules:    in.IncludeCapsules,
		IncludeQuarantined: in.IncludeQuarantined,
	}

	resp, err := s.acb.BuildACB(req)
	if err != nil {
		respondError(w, err)
		return
	}
	s.hub.Broadcast(resp)
	respondJSON(w, http.StatusOK, resp)
}

type capsuleInput struct {
	Scope            string              `json:"scope"`
	SubjectType      *string             `json:"subject_type,omitempty"`
	SubjectID        *string             `json:"subject_id,omitempty"`
	AudienceAgentIDs []string            `json:"audience_agent_ids"`
	Items            model.CapsuleItems  `json:"items"`
	TTLDays          int                 `json:"ttl_days"`
	Risks            []string            `json:"risks"`
}

func (s *Server) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	var in capsuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	c, err := s.capsules.CreateCapsule(r.Context(), capsule.CreateInput{
		TenantID:         id.TenantID,
		AuthorAgentID:    id.ActorID,
		Scope:            model.CapsuleScope(in.Scope),
		SubjectType:      in.SubjectType,
		SubjectID:        in.SubjectID,
		AudienceAgentIDs: in.AudienceAgentIDs,
		Items:            in.Items,
		TTLDays:          in.TTLDays,
		Risks:            in.Risks,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListCapsules(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	agentID := q.Get("agent_id")
	var subjectType, subjectID *string
	if v := q.Get("subject_type"); v != "" {
		subjectType = &v
	}
	if v := q.Get("subject_id"); v != "" {
		subjectID = &v
	}

	caps, err := s.capsules.ListCapsules(id.TenantID, agentID, subjectType, subjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, caps)
}

func (s *Server) handleGetCapsule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	capsuleID := mux.Vars(r)["id"]
	agentID := r.URL.Query().Get("agent_id")

	c, err := s.capsules.GetCapsule(id.TenantID, capsuleID, agentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleRevokeCapsule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	capsuleID := mux.Vars(r)["id"]
	if err := s.capsules.RevokeCapsule(id.TenantID, capsuleID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type memoryEditInput struct {
	TargetType string          `json:"target_type"`
	TargetID   string          `json:"target_id"`
	Op         string          `json:"op"`
	Patch      model.EditPatch `json:"patch"`
	Reason     string          `json:"reason"`
}

func (s *Server) handleCreateMemoryEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	var in memoryEditInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	edit, err := s.edits.Propose(editservice.ProposeInput{
		TenantID:   id.TenantID,
		TargetType: model.TargetType(in.TargetType),
		TargetID:   in.TargetID,
		Op:         model.EditOp(in.Op),
		Patch:      in.Patch,
		Reason:     in.Reason,
		ProposedBy: id.ActorID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, edit)
}

func (s *Server) handleApproveMemoryEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	edit, err := s.edits.Approve(id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, edit)
}

func (s *Server) handleRejectMemoryEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	edit, err := s.edits.Reject(id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, edit)
}

type edgeInput struct {
	FromNodeID string                 `json:"from_node_id"`
	ToNodeID   string                 `json:"to_node_id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	var in edgeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	e, err := s.graph.CreateEdge(id.TenantID, in.FromNodeID, in.ToNodeID, model.EdgeType(in.Type), in.Properties)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleGetEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	e, err := s.graph.GetEdge(id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEdgeProperties(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	var props map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.graph.UpdateEdgeProperties(id.TenantID, mux.Vars(r)["id"], props); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	if err := s.graph.DeleteEdge(id.TenantID, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	nodeID := mux.Vars(r)["id"]
	typ := model.EdgeType(r.URL.Query().Get("type"))

	edges, err := s.graph.ListEdges(id.TenantID, nodeID, typ)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, edges)
}

func (s *Server) handleTraverse(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	nodeID := mux.Vars(r)["id"]
	q := r.URL.Query()
	typ := model.EdgeType(q.Get("type"))
	dir := graph.Direction(q.Get("direction"))
	if dir == "" {
		dir = graph.DirectionOutgoing
	}
	depth, err := strconv.Atoi(q.Get("depth"))
	if err != nil || depth <= 0 {
		depth = 1
	}

	nodes, err := s.graph.Traverse(id.TenantID, nodeID, typ, dir, depth)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

// handleGetProjectTasks resolves a project's tasks via its reference
// edges: nodes one hop out from the project node are looked up as
// tasks, skipping any that aren't task IDs. Task has no first-class
// project_id column (spec section 3); the graph is the association
// mechanism, documented as an open-question resolution in DESIGN.md.
func (s *Server) handleGetProjectTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	projectNodeID := mux.Vars(r)["id"]

	nodeIDs, err := s.graph.Traverse(id.TenantID, projectNodeID, model.EdgeReferences, graph.DirectionOutgoing, 1)
	if err != nil {
		respondError(w, err)
		return
	}

	var tasks []model.Task
	for _, nodeID := range nodeIDs {
		t, err := s.store.GetTask(id.TenantID, nodeID)
		if err == nil {
			tasks = append(tasks, *t)
		}
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.store.Health()
	if err != nil {
		respondError(w, apierr.New(apierr.KindStorage, "health check failed", err))
		return
	}
	respondJSON(w, http.StatusOK, h)
}
