package models

import "time"

// TaskStatus is the lifecycle state of an AI task. The persisted column is a
// free string for forward compatibility; unknown values are normalized to
// queued at the store boundary so the orchestrator only ever sees the
// closed set below.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Valid reports whether the status is one of the known states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusSucceeded, TaskStatusFailed:
		return true
	}
	return false
}

// Normalize maps unknown persisted values onto the closed set.
func (s TaskStatus) Normalize() TaskStatus {
	if s.Valid() {
		return s
	}
	return TaskStatusQueued
}

// Terminal reports whether the task has finished and is immutable.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Known AI task types. The type column is free-form; these are the kinds the
// pipeline itself submits.
const (
	TaskTypeClassify  = "classify"
	TaskTypeSummarize = "summarize"
	TaskTypeGenerate  = "generate"
)

// AITask is an asynchronous unit of AI-assisted work.
type AITask struct {
	ID            string     `json:"id" db:"id"`
	Type          string     `json:"type" db:"type"`
	Status        TaskStatus `json:"status" db:"status"`
	Input         JSONMap    `json:"input" db:"input"`
	Output        JSONMap    `json:"output,omitempty" db:"output"`
	Error         *string    `json:"error,omitempty" db:"error"`
	Attempts      int        `json:"attempts" db:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// DedupKeyField is the input field callers may set to make Submit idempotent.
const DedupKeyField = "dedup_key"

// DedupKey returns the caller-supplied deduplication key, if any.
func (t *AITask) DedupKey() string {
	if t.Input == nil {
		return ""
	}
	key, _ := t.Input[DedupKeyField].(string)
	return key
}
