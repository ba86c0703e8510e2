package catalog

import (
	"context"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/identity"
)

// EnsureTask returns the task keyed by (params hash, input-set hash),
// creating it QUEUED when absent. The bool reports creation.
func (s *Store) EnsureTask(ctx context.Context, params map[string]interface{}, inputs []domain.TaskInput) (*domain.Task, bool, error) {
	if len(inputs) == 0 {
		return nil, false, domain.ErrValidation("task requires at least one input")
	}
	paramsHash, err := identity.ParamsHash(params)
	if err != nil {
		return nil, false, domain.ErrValidation("hash task params: %v", err)
	}
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ProductID)
	}
	inputHash := identity.InputSetHash(ids)

	var (
		task    *domain.Task
		created bool
	)
	err = s.WithTx(ctx, "ensure task", func(tx *Tx) error {
		for _, in := range inputs {
			if _, err := tx.Products.Get(ctx, in.ProductID); err != nil {
				return err
			}
		}
		ok, err := tx.Tasks.Insert(ctx, domain.Task{
			ID:           domain.NewID(),
			Status:       domain.TaskQueued,
			ParamsHash:   paramsHash,
			Params:       params,
			InputSetHash: inputHash,
			Inputs:       inputs,
			CreatedAt:    tx.Now,
		})
		if err != nil {
			return err
		}
		created = ok
		task, err = tx.Tasks.FindByHashes(ctx, paramsHash, inputHash)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return tx.Emit(ctx, domain.EventTaskCreated, domain.EntityTask, task.ID, map[string]interface{}{
			"params_hash":    paramsHash,
			"input_set_hash": inputHash,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return task, created, nil
}

// GetTask returns a task with its inputs and outputs.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks().Get(ctx, id)
}

// StartTask moves a QUEUED task to RUNNING on worker.
func (s *Store) StartTask(ctx context.Context, id, worker string) error {
	return s.WithTx(ctx, "start task", func(tx *Tx) error {
		if err := tx.Tasks.Start(ctx, id, worker, tx.Now); err != nil {
			return err
		}
		return tx.Emit(ctx, domain.EventTaskStarted, domain.EntityTask, id, map[string]interface{}{"worker": worker})
	})
}

// FinishTask moves a RUNNING task to DONE and records its output products.
func (s *Store) FinishTask(ctx context.Context, id string, outputs []string) error {
	return s.WithTx(ctx, "finish task", func(tx *Tx) error {
		for _, out := range outputs {
			if _, err := tx.Products.Get(ctx, out); err != nil {
				return err
			}
		}
		if err := tx.Tasks.Finish(ctx, id, outputs, tx.Now); err != nil {
			return err
		}
		return tx.Emit(ctx, domain.EventTaskFinished, domain.EntityTask, id, map[string]interface{}{"outputs": len(outputs)})
	})
}

// FailTask moves a RUNNING task to ERROR with a message.
func (s *Store) FailTask(ctx context.Context, id, message string) error {
	return s.WithTx(ctx, "fail task", func(tx *Tx) error {
		if err := tx.Tasks.Fail(ctx, id, message, tx.Now); err != nil {
			return err
		}
		return tx.Emit(ctx, domain.EventTaskFailed, domain.EntityTask, id, map[string]interface{}{"error": message})
	})
}
