package tasks_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/curator/internal/ai"
	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
	"github.com/jonesrussell/north-cloud/curator/internal/tasks"
)

// fakeStore is an in-memory task store with the same claim semantics as the
// SQL repository: a queued task is claimed exactly once.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*models.AITask
	seq   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*models.AITask)}
}

func (s *fakeStore) Create(_ context.Context, task *models.AITask) (*models.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key := task.DedupKey(); key != "" {
		for _, existing := range s.tasks {
			if existing.DedupKey() == key {
				return existing, nil
			}
		}
	}
	s.seq++
	if task.ID == "" {
		task.ID = "task-" + strconv.Itoa(s.seq)
	}
	task.Status = models.TaskStatusQueued
	s.tasks[task.ID] = task
	return task, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *fakeStore) ClaimQueued(_ context.Context, limit int) ([]*models.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := make([]*models.AITask, 0, limit)
	for _, task := range s.tasks {
		if len(claimed) >= limit {
			break
		}
		eligible := task.Status == models.TaskStatusQueued &&
			(task.NextAttemptAt == nil || !task.NextAttemptAt.After(time.Now().UTC()))
		if eligible {
			task.Status = models.TaskStatusRunning
			copied := *task
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (s *fakeStore) MarkSucceeded(_ context.Context, id string, output models.JSONMap) error {
	return s.transition(id, models.TaskStatusSucceeded, func(task *models.AITask) {
		task.Output = output
	})
}

func (s *fakeStore) MarkFailed(_ context.Context, id, errMsg string) error {
	return s.transition(id, models.TaskStatusFailed, func(task *models.AITask) {
		task.Error = &errMsg
	})
}

func (s *fakeStore) Requeue(_ context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	return s.transition(id, models.TaskStatusQueued, func(task *models.AITask) {
		task.Error = &errMsg
		task.Attempts++
		task.NextAttemptAt = &nextAttemptAt
	})
}

func (s *fakeStore) ResetStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (s *fakeStore) transition(id string, to models.TaskStatus, mutate func(*models.AITask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.ErrNotFound
	}
	if task.Status != models.TaskStatusRunning {
		return models.ErrStaleStatus
	}
	task.Status = to
	mutate(task)
	return nil
}

func workerConfig() config.TasksConfig {
	return config.TasksConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		Workers:      2,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffCap:   10 * time.Millisecond,
		StaleAfter:   time.Minute,
	}
}

func TestWorker_ExecutesClaimedTask(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)

	task, err := orchestrator.Submit(context.Background(), models.TaskTypeClassify,
		models.JSONMap{"title": "Story"})
	require.NoError(t, err)

	invoker := ai.InvokerFunc(func(_ context.Context, taskType string, _ models.JSONMap) (models.JSONMap, error) {
		assert.Equal(t, models.TaskTypeClassify, taskType)
		return models.JSONMap{"category": "news"}, nil
	})
	worker := tasks.NewWorker(store, invoker, metrics.New(), workerConfig(), logger.NewNop())
	worker.ProcessOnce(context.Background())

	got, err := store.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, got.Status)
	assert.Equal(t, "news", got.Output["category"])
}

func TestWorker_RequeuesTransientFailure(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)

	task, err := orchestrator.Submit(context.Background(), models.TaskTypeSummarize, nil)
	require.NoError(t, err)

	invoker := ai.InvokerFunc(func(context.Context, string, models.JSONMap) (models.JSONMap, error) {
		return nil, errors.New("upstream hiccup")
	})
	worker := tasks.NewWorker(store, invoker, metrics.New(), workerConfig(), logger.NewNop())
	worker.ProcessOnce(context.Background())

	got, err := store.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextAttemptAt)
	require.NotNil(t, got.Error)
}

func TestWorker_FailsPermanentlyAfterMaxAttempts(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)

	task, err := orchestrator.Submit(context.Background(), models.TaskTypeClassify, nil)
	require.NoError(t, err)

	// Exhaust retries: attempts 0 and 1 requeue, attempt 2 is terminal.
	store.mu.Lock()
	store.tasks[task.ID].Attempts = 2
	store.mu.Unlock()

	invoker := ai.InvokerFunc(func(context.Context, string, models.JSONMap) (models.JSONMap, error) {
		return nil, errors.New("still broken")
	})
	worker := tasks.NewWorker(store, invoker, metrics.New(), workerConfig(), logger.NewNop())
	worker.ProcessOnce(context.Background())

	got, err := store.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "still broken", *got.Error)
}

func TestWorker_BackoffDelaysReclaim(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)

	task, err := orchestrator.Submit(context.Background(), models.TaskTypeClassify, nil)
	require.NoError(t, err)

	cfg := workerConfig()
	cfg.BackoffBase = time.Hour
	cfg.BackoffCap = time.Hour

	invoker := ai.InvokerFunc(func(context.Context, string, models.JSONMap) (models.JSONMap, error) {
		return nil, errors.New("transient")
	})
	worker := tasks.NewWorker(store, invoker, metrics.New(), cfg, logger.NewNop())
	worker.ProcessOnce(context.Background())
	// The requeued task is not yet eligible, so a second pass claims nothing.
	worker.ProcessOnce(context.Background())

	got, err := store.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestOrchestrator_SubmitIsIdempotentWithDedupKey(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)
	ctx := context.Background()

	first, err := orchestrator.Submit(ctx, models.TaskTypeClassify,
		models.JSONMap{models.DedupKeyField: "classify:content-1"})
	require.NoError(t, err)

	second, err := orchestrator.Submit(ctx, models.TaskTypeClassify,
		models.JSONMap{models.DedupKeyField: "classify:content-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestOrchestrator_Await(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)
	ctx := context.Background()

	task, err := orchestrator.Submit(ctx, models.TaskTypeClassify, nil)
	require.NoError(t, err)

	// Terminal already: Await returns without waiting for a tick.
	store.mu.Lock()
	store.tasks[task.ID].Status = models.TaskStatusSucceeded
	store.mu.Unlock()

	got, err := orchestrator.Await(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, got.Status)
}

func TestOrchestrator_AwaitHonorsContext(t *testing.T) {
	store := newFakeStore()
	orchestrator := tasks.NewOrchestrator(store)

	task, err := orchestrator.Submit(context.Background(), models.TaskTypeClassify, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = orchestrator.Await(ctx, task.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
