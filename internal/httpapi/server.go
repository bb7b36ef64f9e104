// Package httpapi is a thin reference binding for the wire surface of
// spec section 6, built on gorilla/mux following the teacher's
// internal/server/server.go router setup. Transport is explicitly out
// of scope for the spec; this package exists only so the domain engines
// have one concrete, exercised consumer. Auth resolution is an injected
// collaborator: "transport resolves identity, core trusts it."
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/acbmem/agentmem/internal/acb"
	"github.com/acbmem/agentmem/internal/capsule"
	"github.com/acbmem/agentmem/internal/editservice"
	"github.com/acbmem/agentmem/internal/graph"
	"github.com/acbmem/agentmem/internal/ingest"
	"github.com/acbmem/agentmem/internal/ratelimit"
	"github.com/acbmem/agentmem/internal/store"
)

// Identity is what auth resolution hands back to the handlers.
type Identity struct {
	TenantID string
	ActorID  string
}

// AuthResolver resolves a request's bearer token/API key to an
// Identity; the core never issues credentials, it trusts this.
type AuthResolver func(r *http.Request) (Identity, error)

// Server wires the domain engines into HTTP handlers.
type Server struct {
	store      *store.Store
	ingest     *ingest.Engine
	acb        *acb.Orchestrator
	capsules   *capsule.Engine
	graph      *graph.Engine
	edits      *editservice.Engine
	auth       AuthResolver
	eventLimit *ratelimit.Limiter
	acbLimit   *ratelimit.Limiter
	hub        *Hub

	router *mux.Router
}

// Deps bundles the engines a Server needs.
type Deps struct {
	Store    *store.Store
	Ingest   *ingest.Engine
	ACB      *acb.Orchestrator
	Capsules *capsule.Engine
	Graph    *graph.Engine
	Edits    *editservice.Engine
	Auth     AuthResolver
}

// NewServer builds a Server with its routes registered.
func NewServer(d Deps) *Server {
	s := &Server{
		store:      d.Store,
		ingest:     d.Ingest,
		acb:        d.ACB,
		capsules:   d.Capsules,
		graph:      d.Graph,
		edits:      d.Edits,
		auth:       d.Auth,
		eventLimit: ratelimit.New(ratelimit.DefaultEventsPerMinute, time.Minute),
		acbLimit:   ratelimit.New(ratelimit.DefaultACBBuildsPerMinute, time.Minute),
		hub:        NewHub(),
	}
	s.router = mux.NewRouter()
	s.registerRoutes()
	go s.hub.Run()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/events", s.handleCreateEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/acb/build", s.handleBuildACB).Methods(http.MethodPost)
	s.router.HandleFunc("/capsules", s.handleCreateCapsule).Methods(http.MethodPost)
	s.router.HandleFunc("/capsules", s.handleListCapsules).Methods(http.MethodGet)
	s.router.HandleFunc("/capsules/{id}", s.handleGetCapsule).Methods(http.MethodGet)
	s.router.HandleFunc("/capsules/{id}", s.handleRevokeCapsule).Methods(http.MethodDelete)
	s.router.HandleFunc("/memory-edits", s.handleCreateMemoryEdit).Methods(http.MethodPost)
	s.router.HandleFunc("/memory-edits/{id}/approve", s.handleApproveMemoryEdit).Methods(http.MethodPost)
	s.router.HandleFunc("/memory-edits/{id}/reject", s.handleRejectMemoryEdit).Methods(http.MethodPost)

	s.router.HandleFunc("/edges", s.handleCreateEdge).Methods(http.MethodPost)
	s.router.HandleFunc("/edges/{id}", s.handleGetEdge).Methods(http.MethodGet)
	s.router.HandleFunc("/edges/{id}", s.handleUpdateEdgeProperties).Methods(http.MethodPatch)
	s.router.HandleFunc("/edges/{id}", s.handleDeleteEdge).Methods(http.MethodDelete)
	s.router.HandleFunc("/nodes/{id}/edges", s.handleGetEdges).Methods(http.MethodGet)
	s.router.HandleFunc("/nodes/{id}/traverse", s.handleTraverse).Methods(http.MethodGet)
	s.router.HandleFunc("/projects/{id}/tasks", s.handleGetProjectTasks).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}
