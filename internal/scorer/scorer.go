// Package scorer moves content from RAW to PROCESSED, assigning score,
// priority, category, and tags. AI enrichment is best-effort: content is
// always finalized with at least the heuristic baseline.
package scorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// ContentStore is the slice of content persistence the scorer needs.
type ContentStore interface {
	GetByID(ctx context.Context, id string) (*models.Content, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ContentStatus) error
	ClaimRaw(ctx context.Context, limit int) ([]*models.Content, error)
	FinishScoring(ctx context.Context, id string, score float64, priority int,
		category *string, tags models.StringArray, metadata models.JSONMap) error
	ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SourceStore resolves a content item's owning source for trust weighting.
type SourceStore interface {
	GetByID(ctx context.Context, id string) (*models.Source, error)
}

// TagStore upserts derived tags.
type TagStore interface {
	UpsertAll(ctx context.Context, contentID string, tags []string) error
}

// TaskService submits classification tasks and waits for their results.
type TaskService interface {
	Submit(ctx context.Context, taskType string, input models.JSONMap) (*models.AITask, error)
	Await(ctx context.Context, id string) (*models.AITask, error)
}

// staleSweepInterval is how often stuck PROCESSING rows are returned to RAW.
const staleSweepInterval = time.Minute

// Scorer sweeps RAW content and scores it.
type Scorer struct {
	content ContentStore
	sources SourceStore
	tags    TagStore
	tasks   TaskService
	metrics *metrics.Metrics
	cfg     config.ScorerConfig
	log     logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// New creates a scorer. tasks may be nil, which disables AI enrichment.
func New(
	content ContentStore,
	sources SourceStore,
	tags TagStore,
	tasks TaskService,
	m *metrics.Metrics,
	cfg config.ScorerConfig,
	log logger.Logger,
) *Scorer {
	return &Scorer{
		content:  content,
		sources:  sources,
		tags:     tags,
		tasks:    tasks,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep and stale-recovery loops.
func (s *Scorer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.wg.Add(1)
	go s.runRecovery(ctx)

	s.log.Info("scorer started",
		logger.Duration("poll_interval", s.cfg.PollInterval),
		logger.Int("batch_size", s.cfg.BatchSize))
}

// Stop stops the loops and waits for in-flight scoring.
func (s *Scorer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.log.Info("scorer stopped")
}

func (s *Scorer) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scorer) runRecovery(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := s.content.ResetStaleProcessing(ctx, s.cfg.StaleAfter)
			if err != nil {
				s.log.Error("failed to reset stale processing content", logger.Error(err))
				continue
			}
			if reset > 0 {
				s.log.Warn("returned stale processing content to raw", logger.Int64("count", reset))
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep claims a batch of RAW content and scores each item. The claim is a
// compare-and-set batch update, so concurrent sweeps never score the same
// row twice.
func (s *Scorer) Sweep(ctx context.Context) {
	claimed, err := s.content.ClaimRaw(ctx, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("failed to claim raw content", logger.Error(err))
		return
	}

	for _, content := range claimed {
		if scoreErr := s.score(ctx, content); scoreErr != nil {
			s.log.Error("failed to score content",
				logger.String("content_id", content.ID), logger.Error(scoreErr))
		}
	}
}

// Process scores a single content item by id. It is a guarded no-op when the
// item is not RAW, so repeated calls transition RAW→PROCESSING→PROCESSED
// exactly once.
func (s *Scorer) Process(ctx context.Context, contentID string) error {
	if err := s.content.TransitionStatus(ctx, contentID,
		models.ContentStatusRaw, models.ContentStatusProcessing); err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			return nil // already claimed or past RAW
		}
		return err
	}

	content, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return err
	}
	return s.score(ctx, content)
}

// score finalizes one claimed (PROCESSING) item.
func (s *Scorer) score(ctx context.Context, content *models.Content) error {
	source, err := s.sources.GetByID(ctx, content.SourceID)
	if err != nil {
		s.log.Warn("owning source not found, using neutral trust",
			logger.String("content_id", content.ID), logger.Error(err))
		source = nil
	}

	result := s.baseline(content, source)

	if s.wantsAI(source) {
		s.enrich(ctx, content, &result)
	}

	if len(result.Tags) > 0 {
		if tagErr := s.tags.UpsertAll(ctx, content.ID, result.Tags); tagErr != nil {
			s.log.Error("failed to upsert tags",
				logger.String("content_id", content.ID), logger.Error(tagErr))
		}
	}

	merged := mergeTags(content.Tags, result.Tags)
	if err := s.content.FinishScoring(ctx, content.ID,
		result.Score, result.Priority, result.Category, merged, result.Metadata); err != nil {
		return err
	}

	s.metrics.ContentProcessed.Inc()
	s.log.Debug("content processed",
		logger.String("content_id", content.ID),
		logger.Float64("score", result.Score),
		logger.Int("priority", result.Priority))
	return nil
}

// wantsAI reports whether the source type is configured for AI enrichment.
func (s *Scorer) wantsAI(source *models.Source) bool {
	if s.tasks == nil || source == nil {
		return false
	}
	for _, t := range s.cfg.AISourceTypes {
		if t == source.Type {
			return true
		}
	}
	return false
}

// enrich submits a classify task and folds a timely result into the scoring
// outcome. Failures and timeouts leave the baseline untouched and are noted
// in the content metadata.
func (s *Scorer) enrich(ctx context.Context, content *models.Content, result *Result) {
	input := models.JSONMap{
		"title":              content.Title,
		models.DedupKeyField: "classify:" + content.ID,
	}
	if content.Body != nil {
		input["body"] = *content.Body
	}

	task, err := s.tasks.Submit(ctx, models.TaskTypeClassify, input)
	if err != nil {
		s.log.Warn("failed to submit classify task",
			logger.String("content_id", content.ID), logger.Error(err))
		result.Metadata["ai_failure"] = err.Error()
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.AIWaitTimeout)
	defer cancel()

	finished, err := s.tasks.Await(waitCtx, task.ID)
	if err != nil {
		s.log.Warn("classify task did not finish in time",
			logger.String("content_id", content.ID),
			logger.String("task_id", task.ID), logger.Error(err))
		result.Metadata["ai_failure"] = "classify wait: " + err.Error()
		return
	}
	if finished.Status != models.TaskStatusSucceeded {
		reason := "classify task failed"
		if finished.Error != nil {
			reason = *finished.Error
		}
		result.Metadata["ai_failure"] = reason
		return
	}

	applyClassification(finished.Output, result)
	result.Metadata["ai_task_id"] = task.ID
}

// applyClassification folds the classify task output into the result.
func applyClassification(output models.JSONMap, result *Result) {
	if category, ok := output["category"].(string); ok && category != "" {
		result.Category = &category
	}
	if aiScore, ok := output["score"].(float64); ok && aiScore >= 0 && aiScore <= 1 {
		// Average the model's judgement with the heuristic baseline.
		result.Score = (result.Score + aiScore) / 2
	}
	if rawTags, ok := output["tags"].([]any); ok {
		for _, raw := range rawTags {
			if tag, ok := raw.(string); ok && tag != "" {
				result.Tags = append(result.Tags, tag)
			}
		}
	}
}

// mergeTags appends new tags to existing ones, preserving order and
// dropping duplicates.
func mergeTags(existing models.StringArray, added []string) models.StringArray {
	seen := make(map[string]struct{}, len(existing)+len(added))
	merged := make(models.StringArray, 0, len(existing)+len(added))
	for _, tag := range existing {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	for _, tag := range added {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	return merged
}
