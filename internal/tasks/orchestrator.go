// Package tasks implements the AI task orchestrator: typed asynchronous
// units of work executed with exclusive claims and bounded retries.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// Store is the slice of task persistence the orchestrator needs. Claims are
// atomic: a queued task is claimed by exactly one worker.
type Store interface {
	Create(ctx context.Context, task *models.AITask) (*models.AITask, error)
	GetByID(ctx context.Context, id string) (*models.AITask, error)
	ClaimQueued(ctx context.Context, limit int) ([]*models.AITask, error)
	MarkSucceeded(ctx context.Context, id string, output models.JSONMap) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Requeue(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Orchestrator submits tasks and exposes completion waiting. Execution
// happens in Worker.
type Orchestrator struct {
	store Store
}

// NewOrchestrator creates an orchestrator over the given store.
func NewOrchestrator(store Store) *Orchestrator {
	return &Orchestrator{store: store}
}

// Submit creates a queued task. When input carries a dedup_key and a task
// with that key already exists, the existing task is returned, making Submit
// idempotent for the caller.
func (o *Orchestrator) Submit(ctx context.Context, taskType string, input models.JSONMap) (*models.AITask, error) {
	task := &models.AITask{
		Type:  taskType,
		Input: input,
	}
	created, err := o.store.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	return created, nil
}

// Get returns the task with the given id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.AITask, error) {
	return o.store.GetByID(ctx, id)
}

// awaitPollInterval is how often Await re-reads the task row.
const awaitPollInterval = 500 * time.Millisecond

// Await polls the task until it reaches a terminal state or the context is
// done. Callers bound the wait with a context deadline.
func (o *Orchestrator) Await(ctx context.Context, id string) (*models.AITask, error) {
	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		task, err := o.store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("await task: %w", err)
		}
		if task.Status.Terminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
