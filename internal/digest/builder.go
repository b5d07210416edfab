// Package digest assembles the daily digest snapshot of published content.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/events"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// ContentStore lists published content for a window.
type ContentStore interface {
	ListPublishedBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.Content, error)
}

// DigestStore persists digests keyed by date.
type DigestStore interface {
	UpsertByDate(ctx context.Context, digest *models.DailyDigest) error
	GetByDate(ctx context.Context, date string) (*models.DailyDigest, error)
}

// Builder builds one digest per calendar date. Rebuilding a date replaces
// the stored row wholesale.
type Builder struct {
	content    ContentStore
	digests    DigestStore
	summarizer Summarizer
	publisher  *events.Publisher
	metrics    *metrics.Metrics
	cfg        config.DigestConfig
	log        logger.Logger
}

// New creates a digest builder.
func New(
	content ContentStore,
	digests DigestStore,
	summarizer Summarizer,
	publisher *events.Publisher,
	m *metrics.Metrics,
	cfg config.DigestConfig,
	log logger.Logger,
) *Builder {
	return &Builder{
		content:    content,
		digests:    digests,
		summarizer: summarizer,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

// Build assembles the digest for the given date. The window is the UTC
// calendar day [00:00, 24:00). A date with no published content still gets
// an empty digest row so consumers can distinguish "nothing published" from
// "not built yet".
func (b *Builder) Build(ctx context.Context, date time.Time) (*models.DailyDigest, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	dateKey := day.Format("2006-01-02")

	items, err := b.content.ListPublishedBetween(ctx, day, day.Add(24*time.Hour), b.cfg.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("list published content: %w", err)
	}

	title, summary, err := b.summarizer.Summarize(ctx, dateKey, items)
	if err != nil {
		return nil, fmt.Errorf("summarize digest: %w", err)
	}

	contentIDs := make(models.StringArray, 0, len(items))
	for _, item := range items {
		contentIDs = append(contentIDs, item.ID)
	}

	digest := &models.DailyDigest{
		Date:       day,
		Title:      title,
		Summary:    summary,
		ContentIDs: contentIDs,
		TotalItems: len(items),
	}
	if err := b.digests.UpsertByDate(ctx, digest); err != nil {
		return nil, fmt.Errorf("store digest: %w", err)
	}

	b.metrics.DigestsBuilt.Inc()
	b.publisher.PublishAsync(events.Event{
		EventType: events.EventDigestBuilt,
		Payload: map[string]any{
			"date":        dateKey,
			"total_items": len(items),
		},
	})

	b.log.Info("digest built",
		logger.String("date", dateKey),
		logger.Int("total_items", len(items)))
	return digest, nil
}

// BuildYesterday builds the digest for the previous UTC day. This is the
// entry point the cron schedule calls.
func (b *Builder) BuildYesterday(ctx context.Context) (*models.DailyDigest, error) {
	return b.Build(ctx, time.Now().UTC().AddDate(0, 0, -1))
}

// Get returns the stored digest for a date key (2006-01-02).
func (b *Builder) Get(ctx context.Context, date string) (*models.DailyDigest, error) {
	return b.digests.GetByDate(ctx, date)
}
