package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toltec-dpdb/internal/domain"
)

// TaskRepo persists reduction tasks with their inputs and outputs.
type TaskRepo struct {
	db DBTX
}

func NewTaskRepo(db DBTX) *TaskRepo {
	return &TaskRepo{db: db}
}

// WithTx returns a TaskRepo bound to tx.
func (r *TaskRepo) WithTx(tx *sql.Tx) *TaskRepo { return &TaskRepo{db: tx} }

// Insert creates a queued task with its inputs. It reports false without
// writing when a task with the same parameter and input-set hashes exists.
func (r *TaskRepo) Insert(ctx context.Context, t domain.Task) (bool, error) {
	params, err := toJSON(t.Params)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reduction_task (pk, status, params_hash, params, input_set_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(params_hash, input_set_hash) DO NOTHING`,
		t.ID, string(domain.TaskQueued), t.ParamsHash, params, t.InputSetHash, formatTime(t.CreatedAt))
	if err != nil {
		return false, mapDBError(err, fmt.Sprintf("task %s", t.ID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	for _, in := range t.Inputs {
		role := in.Role
		if role == "" {
			role = "input"
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO task_input (task_fk, data_prod_fk, role) VALUES (?, ?, ?)`,
			t.ID, in.ProductID, role); err != nil {
			return false, mapDBError(err, fmt.Sprintf("task %s input %s", t.ID, in.ProductID))
		}
	}
	return true, nil
}

// FindByHashes returns the task keyed by the two hashes.
func (r *TaskRepo) FindByHashes(ctx context.Context, paramsHash, inputSetHash string) (*domain.Task, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT pk FROM reduction_task WHERE params_hash = ? AND input_set_hash = ?`,
		paramsHash, inputSetHash).Scan(&id)
	if err != nil {
		return nil, mapDBError(err, "task")
	}
	return r.Get(ctx, id)
}

// Get returns a task with its inputs and outputs.
func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	var t domain.Task
	var status, params, created string
	var worker, errMsg, started, finished sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT pk, status, params_hash, params, input_set_hash, worker_host, error_message, created_at, started_at, finished_at
		 FROM reduction_task WHERE pk = ?`, id).
		Scan(&t.ID, &status, &t.ParamsHash, &params, &t.InputSetHash, &worker, &errMsg, &created, &started, &finished)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("task %s", id))
	}
	t.Status = domain.TaskStatus(status)
	t.WorkerHost = stringPtr(worker)
	t.ErrorMessage = stringPtr(errMsg)
	t.CreatedAt = parseTime(created)
	t.StartedAt = nullTime(started)
	t.FinishedAt = nullTime(finished)
	if err := fromJSON(params, &t.Params); err != nil {
		return nil, fmt.Errorf("task %s params: %w", id, err)
	}

	inRows, err := r.db.QueryContext(ctx,
		`SELECT data_prod_fk, role FROM task_input WHERE task_fk = ? ORDER BY data_prod_fk`, id)
	if err != nil {
		return nil, err
	}
	defer inRows.Close()
	for inRows.Next() {
		var in domain.TaskInput
		if err := inRows.Scan(&in.ProductID, &in.Role); err != nil {
			return nil, err
		}
		t.Inputs = append(t.Inputs, in)
	}
	if err := inRows.Err(); err != nil {
		return nil, err
	}

	outRows, err := r.db.QueryContext(ctx,
		`SELECT data_prod_fk FROM task_output WHERE task_fk = ? ORDER BY data_prod_fk`, id)
	if err != nil {
		return nil, err
	}
	defer outRows.Close()
	for outRows.Next() {
		var pid string
		if err := outRows.Scan(&pid); err != nil {
			return nil, err
		}
		t.Outputs = append(t.Outputs, pid)
	}
	return &t, outRows.Err()
}

// Start moves a queued task to RUNNING on worker.
func (r *TaskRepo) Start(ctx context.Context, id, worker string, now time.Time) error {
	return r.transition(ctx, id, domain.TaskQueued,
		`UPDATE reduction_task SET status = 'RUNNING', worker_host = ?, started_at = ? WHERE pk = ? AND status = 'QUEUED'`,
		worker, formatTime(now), id)
}

// Finish moves a running task to DONE and records its outputs.
func (r *TaskRepo) Finish(ctx context.Context, id string, outputs []string, now time.Time) error {
	if err := r.transition(ctx, id, domain.TaskRunning,
		`UPDATE reduction_task SET status = 'DONE', finished_at = ? WHERE pk = ? AND status = 'RUNNING'`,
		formatTime(now), id); err != nil {
		return err
	}
	for _, pid := range outputs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO task_output (task_fk, data_prod_fk) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			id, pid); err != nil {
			return mapDBError(err, fmt.Sprintf("task %s output %s", id, pid))
		}
	}
	return nil
}

// Fail moves a running task to ERROR with a message.
func (r *TaskRepo) Fail(ctx context.Context, id, message string, now time.Time) error {
	return r.transition(ctx, id, domain.TaskRunning,
		`UPDATE reduction_task SET status = 'ERROR', error_message = ?, finished_at = ? WHERE pk = ? AND status = 'RUNNING'`,
		message, formatTime(now), id)
}

func (r *TaskRepo) transition(ctx context.Context, id string, from domain.TaskStatus, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("task %s", id))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM reduction_task WHERE pk = ?`, id).Scan(&status)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("task %s", id))
	}
	return domain.ErrValidation("task %s is %s, expected %s", id, status, from)
}
