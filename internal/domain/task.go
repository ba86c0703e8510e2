package domain

import "time"

// TaskStatus is the state of a reduction task.
type TaskStatus string

// Task states.
const (
	TaskQueued  TaskStatus = "QUEUED"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskError   TaskStatus = "ERROR"
)

// TaskInput binds a product to a task in a named role.
type TaskInput struct {
	ProductID string
	Role      string
}

// Task is a reduction job keyed by its parameter and input-set hashes.
type Task struct {
	ID           string
	Status       TaskStatus
	ParamsHash   string
	Params       map[string]interface{}
	InputSetHash string
	Inputs       []TaskInput
	Outputs      []string
	WorkerHost   *string
	ErrorMessage *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}
