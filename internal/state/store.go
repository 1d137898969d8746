package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type ModuleStatus struct {
	ModuleID  string    `json:"module_id"`
	Stage     string    `json:"stage"`
	BusyState string    `json:"busy_state"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WorkflowCompletion struct {
	ModuleID  string    `json:"module_id"`
	Workflow  string    `json:"workflow"`
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) GetModuleStatus(ctx context.Context, moduleID string) (ModuleStatus, bool, error) {
	var status ModuleStatus
	var updatedAtStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT module_id, stage, busy_state, updated_at FROM module_status WHERE module_id = ?`,
		moduleID,
	).Scan(&status.ModuleID, &status.Stage, &status.BusyState, &updatedAtStr)
	if err == sql.ErrNoRows {
		return ModuleStatus{}, false, nil
	}
	if err != nil {
		return ModuleStatus{}, false, fmt.Errorf("select module status: %w", err)
	}
	status.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
	return status, true, nil
}

func (s *Store) UpsertModuleStatus(ctx context.Context, status ModuleStatus) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_status (module_id, stage, busy_state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(module_id) DO UPDATE SET stage = excluded.stage, busy_state = excluded.busy_state, updated_at = excluded.updated_at
	`, status.ModuleID, status.Stage, status.BusyState, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert module status: %w", err)
	}
	return nil
}

func (s *Store) ListModuleStatuses(ctx context.Context, limit int) ([]ModuleStatus, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT module_id, stage, busy_state, updated_at FROM module_status ORDER BY module_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list module statuses: %w", err)
	}
	defer rows.Close()

	var out []ModuleStatus
	for rows.Next() {
		var status ModuleStatus
		var updatedAtStr string
		if err := rows.Scan(&status.ModuleID, &status.Stage, &status.BusyState, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scan module status: %w", err)
		}
		status.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
		out = append(out, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module statuses: %w", err)
	}
	return out, nil
}

func (s *Store) GetWorkflowCompletion(ctx context.Context, moduleID, workflow string) (WorkflowCompletion, bool, error) {
	var row WorkflowCompletion
	var completed int
	var updatedAtStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT module_id, workflow, completed, updated_at FROM workflow_completions WHERE module_id = ? AND workflow = ?`,
		moduleID, workflow,
	).Scan(&row.ModuleID, &row.Workflow, &completed, &updatedAtStr)
	if err == sql.ErrNoRows {
		return WorkflowCompletion{}, false, nil
	}
	if err != nil {
		return WorkflowCompletion{}, false, fmt.Errorf("select workflow completion: %w", err)
	}
	row.Completed = completed != 0
	row.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
	return row, true, nil
}

func (s *Store) UpsertWorkflowCompletion(ctx context.Context, moduleID, workflow string, completed bool) error {
	now := time.Now().UTC()
	value := 0
	if completed {
		value = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_completions (module_id, workflow, completed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(module_id, workflow) DO UPDATE SET completed = excluded.completed, updated_at = excluded.updated_at
	`, moduleID, workflow, value, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert workflow completion: %w", err)
	}
	return nil
}
