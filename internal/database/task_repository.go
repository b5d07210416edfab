package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// taskSelectList is the column list for SELECT/RETURNING on ai_tasks.
const taskSelectList = `id, type, status, input, output, error, attempts,
	next_attempt_at, started_at, completed_at, created_at, updated_at`

// TaskRepository manages ai_tasks rows.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new repository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a queued task. When the input carries a dedup key and a
// task with the same key already exists, the existing task is returned and
// no new row is written.
func (r *TaskRepository) Create(ctx context.Context, task *models.AITask) (*models.AITask, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.Status = models.TaskStatusQueued
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	var dedupKey *string
	if key := task.DedupKey(); key != "" {
		dedupKey = &key
	}

	query := `
		INSERT INTO ai_tasks (id, type, status, input, dedup_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Type, task.Status, task.Input, dedupKey, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && dedupKey != nil {
			return r.getByDedupKey(ctx, *dedupKey)
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) getByDedupKey(ctx context.Context, key string) (*models.AITask, error) {
	query := `SELECT ` + taskSelectList + ` FROM ai_tasks WHERE dedup_key = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task by dedup key: %w", err)
	}
	return task, nil
}

// GetByID returns the task with the given id.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.AITask, error) {
	query := `SELECT ` + taskSelectList + ` FROM ai_tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ClaimQueued atomically flips up to limit eligible queued tasks to running
// and returns them. Backoff eligibility is enforced by next_attempt_at; FOR
// UPDATE SKIP LOCKED guarantees no task is claimed by two workers.
func (r *TaskRepository) ClaimQueued(ctx context.Context, limit int) ([]*models.AITask, error) {
	query := `
		UPDATE ai_tasks
		SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM ai_tasks
			WHERE status = $2
			  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskSelectList

	rows, err := r.db.QueryContext(ctx, query,
		models.TaskStatusRunning, models.TaskStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkSucceeded records a successful execution. Only a running task can
// complete; anything else means a competing writer and is reported as
// models.ErrStaleStatus.
func (r *TaskRepository) MarkSucceeded(ctx context.Context, id string, output models.JSONMap) error {
	query := `
		UPDATE ai_tasks
		SET status = $2, output = $3, error = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4`

	return r.execConditional(ctx, query, id, models.TaskStatusSucceeded, output, models.TaskStatusRunning)
}

// MarkFailed records a terminal failure.
func (r *TaskRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE ai_tasks
		SET status = $2, error = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4`

	return r.execConditional(ctx, query, id, models.TaskStatusFailed, errMsg, models.TaskStatusRunning)
}

// Requeue returns a running task to the queue with an incremented attempt
// count and a backoff deadline before it becomes claimable again.
func (r *TaskRepository) Requeue(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	query := `
		UPDATE ai_tasks
		SET status = $2,
		    error = $3,
		    attempts = attempts + 1,
		    next_attempt_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = $5`

	return r.execConditional(ctx, query,
		id, models.TaskStatusQueued, errMsg, nextAttemptAt, models.TaskStatusRunning)
}

// ResetStale returns tasks stuck in running longer than olderThan to the
// queue. Handles workers that crashed after claiming.
func (r *TaskRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE ai_tasks
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < NOW() - $3::interval`

	result, err := r.db.ExecContext(ctx, query,
		models.TaskStatusQueued, models.TaskStatusRunning, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale tasks: %w", err)
	}
	return result.RowsAffected()
}

func (r *TaskRepository) execConditional(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrStaleStatus
	}
	return nil
}

func scanTask(row rowScanner) (*models.AITask, error) {
	var task models.AITask
	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.Status,
		&task.Input,
		&task.Output,
		&task.Error,
		&task.Attempts,
		&task.NextAttemptAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Status = task.Status.Normalize()
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*models.AITask, error) {
	tasks := make([]*models.AITask, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
