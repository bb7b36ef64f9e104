package store

import (
	"database/sql"
	"fmt"

	"github.com/acbmem/agentmem/internal/model"
)

// InsertTask persists a new task.
func (s *Store) InsertTask(t model.Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (task_id, tenant_id, title, details, status, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.TenantID, t.Title, t.Details, string(t.Status), t.TS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// UpdateTaskStatus transitions a task's status.
func (s *Store) UpdateTaskStatus(tenantID, taskID string, status model.TaskStatus) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ? WHERE tenant_id = ? AND task_id = ?`, string(status), tenantID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTaskRow(row interface {
	Scan(dest ...interface{}) error
}) (*model.Task, error) {
	var t model.Task
	var status string
	if err := row.Scan(&t.TaskID, &t.TenantID, &t.Title, &t.Details, &status, &t.TS); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	return &t, nil
}

// OpenTasks returns tasks in the open or doing state for a tenant,
// newest first, feeding the ACB task_state section.
func (s *Store) OpenTasks(tenantID string, limit int) ([]model.Task, error) {
	rows, err := s.db.Query(`
		SELECT task_id, tenant_id, title, details, status, ts
		FROM tasks WHERE tenant_id = ? AND status IN (?, ?)
		ORDER BY ts DESC LIMIT ?`,
		tenantID, string(model.TaskOpen), string(model.TaskDoing), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTask fetches one task by ID within a tenant.
func (s *Store) GetTask(tenantID, taskID string) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT task_id, tenant_id, title, details, status, ts FROM tasks WHERE tenant_id = ? AND task_id = ?`, tenantID, taskID)
	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}
