// Package graph implements the Graph Edges component of spec section
// 4.J: edge CRUD independent of nodes, cycle-safe depends_on creation
// and bounded-depth traversal.
package graph

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/acbmem/agentmem/internal/apierr"
	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/store"
)

// Engine wires the store used to persist and traverse edges.
type Engine struct {
	store *store.Store
}

// New constructs an Engine over an open store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// CreateEdge inserts a new edge. For depends_on edges, it refuses the
// insertion when adding it would create a cycle: a DFS from to_node
// along outgoing depends_on edges must not reach from_node.
func (e *Engine) CreateEdge(tenantID, fromNodeID, toNodeID string, typ model.EdgeType, props map[string]interface{}) (*model.Edge, error) {
	if fromNodeID == "" || toNodeID == "" {
		return nil, apierr.New(apierr.KindValidation, "from_node_id and to_node_id are required", nil)
	}

	if typ == model.EdgeDependsOn {
		cyclic, err := e.wouldCreateCycle(tenantID, fromNodeID, toNodeID)
		if err != nil {
			return nil, apierr.New(apierr.KindStorage, "failed to check for cycle", err)
		}
		if cyclic {
			return nil, apierr.New(apierr.KindConflict, fmt.Sprintf("adding depends_on edge %s -> %s would create a cycle", fromNodeID, toNodeID), nil)
		}
	}

	now := time.Now()
	edge := model.Edge{
		EdgeID:     idgen.New(idgen.KindEdge),
		TenantID:   tenantID,
		FromNodeID: fromNodeID,
		ToNodeID:   toNodeID,
		Type:       typ,
		Properties: props,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := e.store.WithTxGraph(func(tx *sql.Tx) error {
		return store.InsertEdgeTx(tx, edge)
	})
	if err != nil {
		return nil, apierr.New(apierr.KindStorage, "failed to insert edge", err)
	}
	return &edge, nil
}

// wouldCreateCycle performs a DFS from toNodeID along outgoing
// depends_on edges, checking whether fromNodeID is reachable (which
// would close a cycle once fromNodeID -> toNodeID is added).
func (e *Engine) wouldCreateCycle(tenantID, fromNodeID, toNodeID string) (bool, error) {
	if fromNodeID == toNodeID {
		return true, nil
	}

	visited := map[string]bool{}
	stack := []string{toNodeID}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		if n == fromNodeID {
			return true, nil
		}

		edges, err := e.store.EdgesFrom(tenantID, n, model.EdgeDependsOn)
		if err != nil {
			return false, err
		}
		for _, edge := range edges {
			if !visited[edge.ToNodeID] {
				stack = append(stack, edge.ToNodeID)
			}
		}
	}

	return false, nil
}

// Direction names which side of an edge traversal follows.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Traverse returns the set of node IDs reachable from start within
// depth hops along edges of the given type and direction, via BFS.
func (e *Engine) Traverse(tenantID, start string, typ model.EdgeType, dir Direction, depth int) ([]string, error) {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var reached []string

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, n := range frontier {
			var edges []model.Edge
			var err error
			switch {
			case dir == DirectionIncoming && typ == "":
				edges, err = e.store.EdgesToAny(tenantID, n)
			case dir == DirectionIncoming:
				edges, err = e.store.EdgesTo(tenantID, n, typ)
			case typ == "":
				edges, err = e.store.EdgesFromAny(tenantID, n)
			default:
				edges, err = e.store.EdgesFrom(tenantID, n, typ)
			}
			if err != nil {
				return nil, apierr.New(apierr.KindStorage, "failed to traverse edges", err)
			}
			for _, edge := range edges {
				neighbor := edge.ToNodeID
				if dir == DirectionIncoming {
					neighbor = edge.FromNodeID
				}
				if !visited[neighbor] {
					visited[neighbor] = true
					reached = append(reached, neighbor)
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	return reached, nil
}

// GetEdge fetches one edge by ID within a tenant.
func (e *Engine) GetEdge(tenantID, edgeID string) (*model.Edge, error) {
	edge, err := e.store.GetEdge(tenantID, edgeID)
	if err != nil {
		return nil, apierr.New(apierr.KindNotFound, "edge not found", err)
	}
	return edge, nil
}

// ListEdges returns edges touching a node in either direction,
// optionally filtered by type (pass "" for any type).
func (e *Engine) ListEdges(tenantID, nodeID string, typ model.EdgeType) ([]model.Edge, error) {
	var out, incoming []model.Edge
	var err error

	if typ == "" {
		out, err = e.store.EdgesFromAny(tenantID, nodeID)
		if err != nil {
			return nil, apierr.New(apierr.KindStorage, "failed to list edges", err)
		}
		incoming, err = e.store.EdgesToAny(tenantID, nodeID)
	} else {
		out, err = e.store.EdgesFrom(tenantID, nodeID, typ)
		if err != nil {
			return nil, apierr.New(apierr.KindStorage, "failed to list edges", err)
		}
		incoming, err = e.store.EdgesTo(tenantID, nodeID, typ)
	}
	if err != nil {
		return nil, apierr.New(apierr.KindStorage, "failed to list edges", err)
	}
	return append(out, incoming...), nil
}

// UpdateEdgeProperties replaces an edge's properties map.
func (e *Engine) UpdateEdgeProperties(tenantID, edgeID string, props map[string]interface{}) error {
	if err := e.store.UpdateEdgeProperties(tenantID, edgeID, props); err != nil {
		return apierr.New(apierr.KindNotFound, "edge not found", err)
	}
	return nil
}

// DeleteEdge removes an edge by ID within a tenant.
func (e *Engine) DeleteEdge(tenantID, edgeID string) error {
	if err := e.store.DeleteEdge(tenantID, edgeID); err != nil {
		return apierr.New(apierr.KindNotFound, "edge not found", err)
	}
	return nil
}
