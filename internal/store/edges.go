package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/acbmem/agentmem/internal/model"
)

// InsertEdgeTx persists a new edge inside a transaction so callers (the
// graph package) can combine the cycle check and the insert atomically.
func InsertEdgeTx(tx *sql.Tx, e model.Edge) error {
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal edge properties: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO edges (edge_id, tenant_id, from_node_id, to_node_id, type, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EdgeID, e.TenantID, e.FromNodeID, e.ToNodeID, string(e.Type), string(propsJSON), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

// WithTx exposes the store's transaction helper to the graph package.
func (s *Store) WithTxGraph(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanEdgeRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.Edge, error) {
	var e model.Edge
	var edgeType, propsRaw string
	err := row.Scan(&e.EdgeID, &e.TenantID, &e.FromNodeID, &e.ToNodeID, &edgeType, &propsRaw, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = model.EdgeType(edgeType)
	json.Unmarshal([]byte(propsRaw), &e.Properties)
	return &e, nil
}

const edgeColumns = `edge_id, tenant_id, from_node_id, to_node_id, type, properties, created_at, updated_at`

// EdgesByType returns every edge of a given type within a tenant, used
// by the cycle check.
func (s *Store) EdgesByType(tenantID string, edgeType model.EdgeType) ([]model.Edge, error) {
	rows, err := s.db.Query(`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = ? AND type = ?`, tenantID, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("failed to query edges by type: %w", err)
	}
	defer rows.Close()

	var out []model.Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// EdgesFrom returns edges of a given type outgoing from a node.
func (s *Store) EdgesFrom(tenantID, nodeID string, edgeType model.EdgeType) ([]model.Edge, error) {
	rows, err := s.db.Query(`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = ? AND from_node_id = ? AND type = ?`, tenantID, nodeID, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

// EdgesTo returns edges of a given type incoming to a node.
func (s *Store) EdgesTo(tenantID, nodeID string, edgeType model.EdgeType) ([]model.Edge, error) {
	rows, err := s.db.Query(`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = ? AND to_node_id = ? AND type = ?`, tenantID, nodeID, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

func collectEdges(rows *sql.Rows) ([]model.Edge, error) {
	var out []model.Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// EdgesFromAny returns every outgoing edge from a node regardless of type.
func (s *Store) EdgesFromAny(tenantID, nodeID string) ([]model.Edge, error) {
	rows, err := s.db.Query(`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = ? AND from_node_id = ?`, tenantID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

// EdgesToAny returns every incoming edge to a node regardless of type.
func (s *Store) EdgesToAny(tenantID, nodeID string) ([]model.Edge, error) {
	rows, err := s.db.Query(`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = ? AND to_node_id = ?`, tenantID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

// GetEdge fetches one edge by ID within a tenant.
func (s *Store) GetEdge(tenantID, edgeID string) (*model.Edge, error) {
	row := s.db.QueryRow(`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = ? AND edge_id = ?`, tenantID, edgeID)
	e, err := scanEdgeRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}
	return e, nil
}

// UpdateEdgeProperties replaces an edge's properties map.
func (s *Store) UpdateEdgeProperties(tenantID, edgeID string, props map[string]interface{}) error {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal edge properties: %w", err)
	}
	res, err := s.db.Exec(`UPDATE edges SET properties = ?, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ? AND edge_id = ?`, string(propsJSON), tenantID, edgeID)
	if err != nil {
		return fmt.Errorf("failed to update edge properties: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEdge removes an edge by ID within a tenant.
func (s *Store) DeleteEdge(tenantID, edgeID string) error {
	res, err := s.db.Exec(`DELETE FROM edges WHERE tenant_id = ? AND edge_id = ?`, tenantID, edgeID)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
