package scorer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
	"github.com/jonesrussell/north-cloud/curator/internal/scorer"
)

type finishCall struct {
	score    float64
	priority int
	category *string
	tags     models.StringArray
	metadata models.JSONMap
}

type fakeContentStore struct {
	mu       sync.Mutex
	items    map[string]*models.Content
	finished map[string]finishCall
	claimed  []*models.Content
}

func newFakeContentStore(items ...*models.Content) *fakeContentStore {
	store := &fakeContentStore{
		items:    make(map[string]*models.Content, len(items)),
		finished: make(map[string]finishCall),
	}
	for _, item := range items {
		store.items[item.ID] = item
	}
	return store
}

func (s *fakeContentStore) GetByID(_ context.Context, id string) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return item, nil
}

func (s *fakeContentStore) TransitionStatus(_ context.Context, id string, from, to models.ContentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.Status != from {
		return models.ErrStaleStatus
	}
	item.Status = to
	return nil
}

func (s *fakeContentStore) ClaimRaw(_ context.Context, limit int) ([]*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []*models.Content
	for _, item := range s.items {
		if item.Status != models.ContentStatusRaw || len(claimed) >= limit {
			continue
		}
		item.Status = models.ContentStatusProcessing
		claimed = append(claimed, item)
	}
	s.claimed = append(s.claimed, claimed...)
	return claimed, nil
}

func (s *fakeContentStore) FinishScoring(_ context.Context, id string, score float64, priority int,
	category *string, tags models.StringArray, metadata models.JSONMap,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return models.ErrNotFound
	}
	item.Status = models.ContentStatusProcessed
	s.finished[id] = finishCall{
		score:    score,
		priority: priority,
		category: category,
		tags:     tags,
		metadata: metadata,
	}
	return nil
}

func (s *fakeContentStore) ResetStaleProcessing(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (s *fakeContentStore) finishedFor(id string) (finishCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.finished[id]
	return call, ok
}

type fakeSourceStore struct {
	sources map[string]*models.Source
}

func newFakeSourceStore(sources ...*models.Source) *fakeSourceStore {
	store := &fakeSourceStore{sources: make(map[string]*models.Source, len(sources))}
	for _, source := range sources {
		store.sources[source.ID] = source
	}
	return store
}

func (s *fakeSourceStore) GetByID(_ context.Context, id string) (*models.Source, error) {
	source, ok := s.sources[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return source, nil
}

type fakeTagStore struct {
	mu       sync.Mutex
	upserted map[string][]string
}

func newFakeTagStore() *fakeTagStore {
	return &fakeTagStore{upserted: make(map[string][]string)}
}

func (s *fakeTagStore) UpsertAll(_ context.Context, contentID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted[contentID] = append(s.upserted[contentID], tags...)
	return nil
}

type fakeTaskService struct {
	mu        sync.Mutex
	submitted []models.JSONMap
	submitErr error
	awaitErr  error
	result    *models.AITask
}

func (s *fakeTaskService) Submit(_ context.Context, taskType string, input models.JSONMap) (*models.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, input)
	return &models.AITask{ID: "task-1", Type: taskType, Status: models.TaskStatusQueued, Input: input}, nil
}

func (s *fakeTaskService) Await(context.Context, string) (*models.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitErr != nil {
		return nil, s.awaitErr
	}
	return s.result, nil
}

func (s *fakeTaskService) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func testConfig() config.ScorerConfig {
	return config.ScorerConfig{
		PollInterval:    time.Hour,
		BatchSize:       10,
		AIWaitTimeout:   time.Second,
		RecencyHalfLife: 24 * time.Hour,
		TrustWeights:    map[string]float64{},
		AISourceTypes:   []models.SourceType{models.SourceTypeRSS},
		StaleAfter:      10 * time.Minute,
	}
}

func longBody() *string {
	body := ""
	for len(body) < 700 {
		body += "substantial article text "
	}
	return &body
}

func rawContent(id, sourceID string) *models.Content {
	return &models.Content{
		ID:        id,
		Title:     "Fresh Headline",
		Body:      longBody(),
		URL:       "https://example.com/" + id,
		Status:    models.ContentStatusRaw,
		SourceID:  sourceID,
		Metadata:  models.JSONMap{},
		CreatedAt: time.Now().UTC(),
	}
}

func newScorer(
	contents *fakeContentStore,
	sources *fakeSourceStore,
	tags *fakeTagStore,
	tasks scorer.TaskService,
	cfg config.ScorerConfig,
) *scorer.Scorer {
	return scorer.New(contents, sources, tags, tasks, metrics.New(), cfg, logger.NewNop())
}

func TestProcessBaselineOnly(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeManual}
	content := rawContent("c-1", source.ID)
	contents := newFakeContentStore(content)
	cfg := testConfig()
	cfg.TrustWeights["feed"] = 1.0

	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), nil, cfg)

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusProcessed, content.Status)

	call, ok := contents.finishedFor(content.ID)
	require.True(t, ok)
	// Fresh, fully trusted, full-length body: every signal at maximum.
	assert.InDelta(t, 1.0, call.score, 0.01)
	assert.Equal(t, 2, call.priority)
	assert.Nil(t, call.category)
	assert.Empty(t, call.tags)
	assert.InDelta(t, call.score, call.metadata["baseline_score"], 0.0001)
}

func TestProcessSkipsNonRawContent(t *testing.T) {
	content := rawContent("c-1", "src-1")
	content.Status = models.ContentStatusProcessed
	contents := newFakeContentStore(content)

	s := newScorer(contents, newFakeSourceStore(), newFakeTagStore(), nil, testConfig())

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)

	_, finished := contents.finishedFor(content.ID)
	assert.False(t, finished)
	assert.Equal(t, models.ContentStatusProcessed, content.Status)
}

func TestProcessMissingSourceUsesNeutralTrust(t *testing.T) {
	content := rawContent("c-1", "gone")
	contents := newFakeContentStore(content)
	tasks := &fakeTaskService{}

	s := newScorer(contents, newFakeSourceStore(), newFakeTagStore(), tasks, testConfig())

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)

	call, ok := contents.finishedFor(content.ID)
	require.True(t, ok)
	// 0.5*1.0 recency + 0.3*0.5 neutral trust + 0.2*1.0 substance.
	assert.InDelta(t, 0.85, call.score, 0.01)
	// No source means no AI enrichment either.
	assert.Zero(t, tasks.submitCount())
}

func TestProcessAIEnrichment(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeRSS}
	content := rawContent("c-1", source.ID)
	content.Tags = models.StringArray{"existing"}
	contents := newFakeContentStore(content)
	tagStore := newFakeTagStore()
	tasks := &fakeTaskService{
		result: &models.AITask{
			ID:     "task-1",
			Status: models.TaskStatusSucceeded,
			Output: models.JSONMap{
				"category": "technology",
				"score":    0.4,
				"tags":     []any{"go", "existing", "cloud"},
			},
		},
	}
	cfg := testConfig()
	cfg.TrustWeights["feed"] = 1.0

	s := newScorer(contents, newFakeSourceStore(source), tagStore, tasks, cfg)

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)

	call, ok := contents.finishedFor(content.ID)
	require.True(t, ok)
	require.NotNil(t, call.category)
	assert.Equal(t, "technology", *call.category)
	// The model's score is averaged with the heuristic baseline.
	assert.InDelta(t, 0.7, call.score, 0.01)
	assert.Equal(t, models.StringArray{"existing", "go", "cloud"}, call.tags)
	assert.Equal(t, "task-1", call.metadata["ai_task_id"])
	assert.Equal(t, []string{"go", "existing", "cloud"}, tagStore.upserted[content.ID])

	require.Len(t, tasks.submitted, 1)
	assert.Equal(t, "classify:c-1", tasks.submitted[0][models.DedupKeyField])
	assert.Equal(t, content.Title, tasks.submitted[0]["title"])
}

func TestProcessAIFailureKeepsBaseline(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeRSS}
	content := rawContent("c-1", source.ID)
	contents := newFakeContentStore(content)
	tasks := &fakeTaskService{awaitErr: context.DeadlineExceeded}

	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), tasks, testConfig())

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusProcessed, content.Status)

	call, ok := contents.finishedFor(content.ID)
	require.True(t, ok)
	assert.Nil(t, call.category)
	assert.Contains(t, call.metadata["ai_failure"], "classify wait")
	assert.InDelta(t, call.metadata["baseline_score"].(float64), call.score, 0.0001)
}

func TestProcessAITaskFailedRecordsReason(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeRSS}
	content := rawContent("c-1", source.ID)
	contents := newFakeContentStore(content)
	reason := "model refused"
	tasks := &fakeTaskService{
		result: &models.AITask{ID: "task-1", Status: models.TaskStatusFailed, Error: &reason},
	}

	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), tasks, testConfig())

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)

	call, ok := contents.finishedFor(content.ID)
	require.True(t, ok)
	assert.Equal(t, reason, call.metadata["ai_failure"])
}

func TestProcessSkipsAIForOtherSourceTypes(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeManual}
	content := rawContent("c-1", source.ID)
	contents := newFakeContentStore(content)
	tasks := &fakeTaskService{submitErr: errors.New("should not be called")}

	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), tasks, testConfig())

	err := s.Process(context.Background(), content.ID)
	require.NoError(t, err)

	_, ok := contents.finishedFor(content.ID)
	assert.True(t, ok)
	assert.Zero(t, tasks.submitCount())
}

func TestSweepScoresClaimedBatch(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeManual}
	first := rawContent("c-1", source.ID)
	second := rawContent("c-2", source.ID)
	done := rawContent("c-3", source.ID)
	done.Status = models.ContentStatusPublished
	contents := newFakeContentStore(first, second, done)

	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), nil, testConfig())

	s.Sweep(context.Background())

	assert.Equal(t, models.ContentStatusProcessed, first.Status)
	assert.Equal(t, models.ContentStatusProcessed, second.Status)
	assert.Equal(t, models.ContentStatusPublished, done.Status)
	assert.Len(t, contents.finished, 2)
}

func TestBaselineRecencyDecay(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeManual}
	cfg := testConfig()
	cfg.TrustWeights["feed"] = 1.0

	fresh := rawContent("fresh", source.ID)
	stale := rawContent("stale", source.ID)
	stale.CreatedAt = time.Now().UTC().Add(-7 * 24 * time.Hour)

	contents := newFakeContentStore(fresh, stale)
	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), nil, cfg)

	require.NoError(t, s.Process(context.Background(), fresh.ID))
	require.NoError(t, s.Process(context.Background(), stale.ID))

	freshCall, _ := contents.finishedFor(fresh.ID)
	staleCall, _ := contents.finishedFor(stale.ID)
	assert.Greater(t, freshCall.score, staleCall.score)
	assert.Equal(t, 2, freshCall.priority)
	// A week old with a 24h half-life: recency is nearly gone.
	assert.Less(t, staleCall.score, 0.6)
}

func TestBaselinePrefersOriginPublishedAt(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeManual}
	cfg := testConfig()
	cfg.TrustWeights["feed"] = 1.0

	content := rawContent("c-1", source.ID)
	content.CreatedAt = time.Now().UTC()
	content.Metadata = models.JSONMap{
		"origin_published_at": time.Now().UTC().Add(-30 * 24 * time.Hour).Format(time.RFC3339),
	}

	contents := newFakeContentStore(content)
	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), nil, cfg)

	require.NoError(t, s.Process(context.Background(), content.ID))

	call, _ := contents.finishedFor(content.ID)
	// Month-old origin timestamp outweighs the fresh row creation time.
	assert.Less(t, call.score, 0.6)
}

func TestStartAndStop(t *testing.T) {
	source := &models.Source{ID: "src-1", Name: "feed", Type: models.SourceTypeManual}
	content := rawContent("c-1", source.ID)
	contents := newFakeContentStore(content)

	s := newScorer(contents, newFakeSourceStore(source), newFakeTagStore(), nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // second call is a no-op

	assert.Eventually(t, func() bool {
		_, ok := contents.finishedFor(content.ID)
		return ok
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}
