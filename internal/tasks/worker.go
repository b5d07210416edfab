package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/ai"
	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/retry"
)

// staleCheckInterval is how often the recovery goroutine looks for tasks
// stuck in running after a worker crash.
const staleCheckInterval = time.Minute

// Worker polls for queued tasks, claims them exclusively, and executes them
// against the AI invoker with per-type timeouts and bounded retries.
type Worker struct {
	store   Store
	invoker ai.Invoker
	metrics *metrics.Metrics
	cfg     config.TasksConfig
	log     logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewWorker creates a task worker.
func NewWorker(store Store, invoker ai.Invoker, m *metrics.Metrics, cfg config.TasksConfig, log logger.Logger) *Worker {
	return &Worker{
		store:    store,
		invoker:  invoker,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the poll and recovery loops.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.log.Info("task worker started",
		logger.Duration("poll_interval", w.cfg.PollInterval),
		logger.Int("batch_size", w.cfg.BatchSize),
		logger.Int("workers", w.cfg.Workers))
}

// Stop stops the loops and waits for in-flight executions.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("task worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.ProcessOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := w.store.ResetStale(ctx, w.cfg.StaleAfter)
			if err != nil {
				w.log.Error("failed to reset stale tasks", logger.Error(err))
				continue
			}
			if reset > 0 {
				w.log.Warn("requeued stale running tasks", logger.Int64("count", reset))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce claims one batch and executes it with bounded parallelism.
func (w *Worker) ProcessOnce(ctx context.Context) {
	claimed, err := w.store.ClaimQueued(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("failed to claim queued tasks", logger.Error(err))
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.log.Debug("claimed tasks", logger.Int("count", len(claimed)))

	sem := make(chan struct{}, w.cfg.Workers)
	var wg sync.WaitGroup
	for _, task := range claimed {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			w.executeOne(ctx, id)
		}(task.ID)
	}
	wg.Wait()
}

// executeOne runs a single claimed task. A running task only ever moves to
// succeeded, failed, or back to queued.
func (w *Worker) executeOne(ctx context.Context, id string) {
	task, err := w.store.GetByID(ctx, id)
	if err != nil {
		w.log.Error("failed to load claimed task", logger.String("task_id", id), logger.Error(err))
		return
	}

	log := w.log.With(
		logger.String("task_id", task.ID),
		logger.String("task_type", task.Type),
		logger.Int("attempt", task.Attempts+1),
	)

	execCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout(task.Type))
	defer cancel()

	start := time.Now()
	output, invokeErr := w.invoker.Invoke(execCtx, task.Type, task.Input)
	w.metrics.TaskDuration.Observe(time.Since(start).Seconds())

	if invokeErr == nil {
		if err := w.store.MarkSucceeded(ctx, task.ID, output); err != nil {
			log.Error("failed to mark task succeeded", logger.Error(err))
			return
		}
		w.metrics.TasksExecuted.WithLabelValues(task.Type, "succeeded").Inc()
		log.Info("task succeeded")
		return
	}

	// Timeouts are treated as failures for retry purposes; the underlying
	// call is abandoned, not killed.
	if errors.Is(invokeErr, context.DeadlineExceeded) {
		invokeErr = ai.ErrTimeout
	}

	if task.Attempts+1 < w.cfg.MaxAttempts {
		delay := retry.Backoff(w.cfg.BackoffBase, w.cfg.BackoffCap, 2.0, task.Attempts+1)
		nextAttemptAt := time.Now().UTC().Add(delay)
		if err := w.store.Requeue(ctx, task.ID, invokeErr.Error(), nextAttemptAt); err != nil {
			log.Error("failed to requeue task", logger.Error(err))
			return
		}
		w.metrics.TasksExecuted.WithLabelValues(task.Type, "requeued").Inc()
		log.Warn("task failed, requeued",
			logger.Error(invokeErr),
			logger.Time("next_attempt_at", nextAttemptAt))
		return
	}

	if err := w.store.MarkFailed(ctx, task.ID, invokeErr.Error()); err != nil {
		log.Error("failed to mark task failed", logger.Error(err))
		return
	}
	w.metrics.TasksExecuted.WithLabelValues(task.Type, "failed").Inc()
	log.Error("task failed permanently", logger.Error(invokeErr))
}
