// Package scheduler implements the ingestion scheduler: it decides which
// sources are due and runs their fetch strategy safely.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/events"
	"github.com/jonesrussell/north-cloud/curator/internal/fetcher"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
	"github.com/jonesrussell/north-cloud/curator/internal/retry"
)

// fetchRetry bounds transient transport retries within a single fetch
// attempt. Rate limits and timeouts are not retried here; the scheduler
// handles those through source health instead.
var fetchRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	IsRetryable: func(err error) bool {
		return errors.Is(err, fetcher.ErrTransport)
	},
}

// SourceStore is the slice of source persistence the scheduler needs.
type SourceStore interface {
	FetchDue(ctx context.Context) ([]*models.Source, error)
	Reactivate(ctx context.Context, id string) error
	RecordFetchSuccess(ctx context.Context, id string, at time.Time) error
	RecordFetchError(ctx context.Context, id, errMsg string, threshold int) error
	RecordRateLimit(ctx context.Context, id string, resumeAt time.Time) error
}

// ContentStore is the slice of content persistence the scheduler needs.
type ContentStore interface {
	Create(ctx context.Context, content *models.Content) error
	ExistsByDedupKey(ctx context.Context, sourceID, key string) (bool, error)
}

// ConfigStore reads operator tunables stored alongside the data. Interval
// overrides take effect on the next tick, not retroactively.
type ConfigStore interface {
	Get(ctx context.Context, key string) (models.JSONMap, error)
}

// Scheduler periodically fetches due sources with bounded concurrency and
// per-source single-flight.
type Scheduler struct {
	sources   SourceStore
	content   ContentStore
	registry  *fetcher.Registry
	tunables  ConfigStore
	publisher *events.Publisher
	metrics   *metrics.Metrics
	cfg       config.SchedulerConfig
	log       logger.Logger

	// inFlight guards per-source single-flight across overlapping ticks.
	mu       sync.Mutex
	inFlight map[string]struct{}

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	startMu  sync.Mutex
}

// New creates a scheduler. tunables may be nil, which disables stored
// interval overrides.
func New(
	sources SourceStore,
	content ContentStore,
	registry *fetcher.Registry,
	tunables ConfigStore,
	publisher *events.Publisher,
	m *metrics.Metrics,
	cfg config.SchedulerConfig,
	log logger.Logger,
) *Scheduler {
	return &Scheduler{
		sources:   sources,
		content:   content,
		registry:  registry,
		tunables:  tunables,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		log:       log,
		inFlight:  make(map[string]struct{}),
		stopChan:  make(chan struct{}),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.startMu.Lock()
	if s.started {
		s.startMu.Unlock()
		return
	}
	s.started = true
	s.startMu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("ingestion scheduler started",
		logger.Duration("tick_interval", s.cfg.TickInterval),
		logger.Int("fetch_concurrency", s.cfg.FetchConcurrency))
}

// Stop stops the tick loop and waits for in-flight fetches.
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	if !s.started {
		s.startMu.Unlock()
		return
	}
	s.started = false
	s.startMu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.log.Info("ingestion scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick selects due sources and fetches them with bounded concurrency. Each
// source's failure is isolated; one bad source never blocks the others.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	s.refreshIntervals(ctx)

	candidates, err := s.sources.FetchDue(ctx)
	if err != nil {
		s.log.Error("failed to query due sources", logger.Error(err))
		return
	}

	sem := make(chan struct{}, s.cfg.FetchConcurrency)
	var wg sync.WaitGroup

	for _, source := range candidates {
		if !s.due(source, now) {
			continue
		}
		if !s.acquire(source.ID) {
			continue // fetch already in flight for this source
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(src *models.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.release(src.ID)

			if src.Status == models.SourceStatusRateLimited {
				if reactivateErr := s.sources.Reactivate(ctx, src.ID); reactivateErr != nil {
					s.log.Error("failed to reactivate source",
						logger.String("source_id", src.ID), logger.Error(reactivateErr))
					return
				}
			}
			s.FetchOne(ctx, src)
		}(source)
	}

	wg.Wait()
}

// refreshIntervals folds stored fetch-interval overrides into this tick's
// schedule. Ticks run sequentially, so the interval map is never read and
// written concurrently.
func (s *Scheduler) refreshIntervals(ctx context.Context) {
	if s.tunables == nil {
		return
	}

	value, err := s.tunables.Get(ctx, models.ConfigKeyFetchIntervals)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("failed to load fetch interval overrides", logger.Error(err))
		return
	}

	for name, raw := range value {
		str, ok := raw.(string)
		if !ok {
			s.log.Warn("ignoring fetch interval override", logger.String("source_type", name))
			continue
		}
		interval, parseErr := time.ParseDuration(str)
		if parseErr != nil {
			s.log.Warn("ignoring fetch interval override",
				logger.String("source_type", name), logger.Error(parseErr))
			continue
		}
		if s.cfg.FetchIntervals == nil {
			s.cfg.FetchIntervals = make(map[models.SourceType]time.Duration)
		}
		s.cfg.FetchIntervals[models.SourceType(name)] = interval
	}
}

// due reports whether the source should be fetched now: ACTIVE with an
// elapsed per-type interval, or RATE_LIMITED past its cool-down deadline.
func (s *Scheduler) due(source *models.Source, now time.Time) bool {
	switch source.Status {
	case models.SourceStatusActive:
		if source.LastFetchAt == nil {
			return true
		}
		return !now.Before(source.LastFetchAt.Add(s.cfg.FetchInterval(source.Type)))
	case models.SourceStatusRateLimited:
		resume := source.RateLimitResumeAt()
		return !resume.IsZero() && !now.Before(resume)
	default:
		return false
	}
}

// FetchOne runs one fetch for a source: resolves the strategy, applies the
// timeout, creates RAW content for non-duplicate items, and updates source
// health.
func (s *Scheduler) FetchOne(ctx context.Context, source *models.Source) {
	log := s.log.With(
		logger.String("source_id", source.ID),
		logger.String("source_type", string(source.Type)),
	)

	strategy, err := s.registry.Resolve(source.Type)
	if err != nil {
		log.Error("no fetcher for source type", logger.Error(err))
		s.recordFailure(ctx, source, err)
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	var items []fetcher.Item
	err = retry.Do(fetchCtx, fetchRetry, func() error {
		var fetchErr error
		items, fetchErr = strategy.Fetch(fetchCtx, source.Config)
		return fetchErr
	})
	s.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, fetcher.ErrRateLimited):
			resumeAt := time.Now().UTC().Add(s.cfg.RateLimitCooldown)
			log.Warn("source rate limited", logger.Time("resume_at", resumeAt))
			s.metrics.FetchesTotal.WithLabelValues(string(source.Type), "rate_limited").Inc()
			if rlErr := s.sources.RecordRateLimit(ctx, source.ID, resumeAt); rlErr != nil {
				log.Error("failed to record rate limit", logger.Error(rlErr))
			}
		default:
			log.Warn("fetch failed", logger.Error(err))
			s.recordFailure(ctx, source, err)
		}
		return
	}

	created := 0
	for i := range items {
		if s.ingestItem(ctx, source, &items[i], log) {
			created++
		}
	}

	if err := s.sources.RecordFetchSuccess(ctx, source.ID, time.Now().UTC()); err != nil {
		log.Error("failed to record fetch success", logger.Error(err))
		return
	}

	s.metrics.FetchesTotal.WithLabelValues(string(source.Type), "success").Inc()
	log.Info("fetch complete",
		logger.Int("items", len(items)),
		logger.Int("created", created))
}

// ingestItem creates one RAW content row unless the source already has the
// item. Returns true when a row was created.
func (s *Scheduler) ingestItem(ctx context.Context, source *models.Source, item *fetcher.Item, log logger.Logger) bool {
	content := &models.Content{
		Title:     item.Title,
		URL:       item.URL,
		Status:    models.ContentStatusRaw,
		SourceID:  source.ID,
		SourceURL: &source.URL,
		Metadata:  models.JSONMap{},
	}
	if item.Body != "" {
		content.Body = &item.Body
	}
	if item.ImageURL != "" {
		content.ImageURL = &item.ImageURL
	}
	if item.PublishedAt != nil {
		content.Metadata["origin_published_at"] = item.PublishedAt.UTC().Format(time.RFC3339)
	}

	exists, err := s.content.ExistsByDedupKey(ctx, source.ID, content.DedupKey())
	if err != nil {
		log.Error("duplicate check failed", logger.Error(err))
		return false
	}
	if exists {
		return false
	}

	if err := s.content.Create(ctx, content); err != nil {
		// A concurrent fetch may have inserted the same item between the
		// existence check and the insert; the unique constraint decides.
		if errors.Is(err, models.ErrDuplicateContent) {
			return false
		}
		log.Error("failed to create content", logger.Error(err))
		return false
	}

	s.metrics.ItemsIngested.WithLabelValues(string(source.Type)).Inc()
	return true
}

func (s *Scheduler) recordFailure(ctx context.Context, source *models.Source, fetchErr error) {
	s.metrics.FetchesTotal.WithLabelValues(string(source.Type), "error").Inc()
	s.metrics.FetchErrors.WithLabelValues(errorKind(fetchErr)).Inc()

	if err := s.sources.RecordFetchError(ctx, source.ID, fetchErr.Error(), s.cfg.ErrorThreshold); err != nil {
		s.log.Error("failed to record fetch error",
			logger.String("source_id", source.ID), logger.Error(err))
		return
	}

	s.publisher.PublishAsync(events.Event{
		EventType: events.EventSourceError,
		Payload: map[string]any{
			"source_id": source.ID,
			"error":     fetchErr.Error(),
		},
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, fetcher.ErrTimeout):
		return "timeout"
	case errors.Is(err, fetcher.ErrTransport):
		return "transport"
	case errors.Is(err, models.ErrUnknownSourceType):
		return "unknown_type"
	default:
		return "other"
	}
}

func (s *Scheduler) acquire(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sourceID]; busy {
		return false
	}
	s.inFlight[sourceID] = struct{}{}
	return true
}

func (s *Scheduler) release(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sourceID)
}
