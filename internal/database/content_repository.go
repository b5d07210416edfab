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

// contentSelectList is the column list for SELECT/RETURNING on content.
const contentSelectList = `id, title, body, url, image_url, category, tags, status,
	score, priority, source_id, source_url, published_at, metadata, created_at, updated_at`

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// ContentRepository manages content rows.
type ContentRepository struct {
	db *sql.DB
}

// NewContentRepository creates a new repository.
func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts a new content row. Returns models.ErrDuplicateContent when
// the source already has content with the same dedup key.
func (r *ContentRepository) Create(ctx context.Context, content *models.Content) error {
	if content.ID == "" {
		content.ID = uuid.New().String()
	}
	if content.Status == "" {
		content.Status = models.ContentStatusRaw
	}
	now := time.Now().UTC()
	content.CreatedAt = now
	content.UpdatedAt = now

	query := `
		INSERT INTO content (
			id, title, body, url, image_url, category, tags, status,
			score, priority, source_id, source_url, dedup_key, published_at,
			metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.ExecContext(ctx, query,
		content.ID,
		content.Title,
		content.Body,
		content.URL,
		content.ImageURL,
		content.Category,
		content.Tags,
		content.Status,
		content.Score,
		content.Priority,
		content.SourceID,
		content.SourceURL,
		content.DedupKey(),
		content.PublishedAt,
		content.Metadata,
		content.CreatedAt,
		content.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicateContent
		}
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// GetByID returns the content with the given id.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*models.Content, error) {
	query := `SELECT ` + contentSelectList + ` FROM content WHERE id = $1`

	content, err := scanContent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	return content, nil
}

// ExistsByDedupKey reports whether the source already has content with the
// given dedup key.
func (r *ContentRepository) ExistsByDedupKey(ctx context.Context, sourceID, key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM content WHERE source_id = $1 AND dedup_key = $2)`
	if err := r.db.QueryRowContext(ctx, query, sourceID, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("check content exists: %w", err)
	}
	return exists, nil
}

// ClaimRaw atomically moves up to limit RAW rows to PROCESSING and returns
// them. Uses FOR UPDATE SKIP LOCKED so concurrent scorer sweeps never claim
// the same row.
func (r *ContentRepository) ClaimRaw(ctx context.Context, limit int) ([]*models.Content, error) {
	query := `
		UPDATE content
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM content
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + contentSelectList

	rows, err := r.db.QueryContext(ctx, query,
		models.ContentStatusProcessing, models.ContentStatusRaw, limit)
	if err != nil {
		return nil, fmt.Errorf("claim raw content: %w", err)
	}
	defer rows.Close()

	return scanContents(rows)
}

// TransitionStatus performs a compare-and-set status change. Returns
// models.ErrStaleStatus when the row is no longer in the expected state, so
// concurrent transitions are safe: exactly one caller wins.
func (r *ContentRepository) TransitionStatus(ctx context.Context, id string, from, to models.ContentStatus) error {
	query := `
		UPDATE content
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("transition content status: %w", err)
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

// FinishScoring writes scoring results and moves PROCESSING content to
// PROCESSED in one conditional update.
func (r *ContentRepository) FinishScoring(ctx context.Context, id string, score float64, priority int,
	category *string, tags models.StringArray, metadata models.JSONMap) error {
	query := `
		UPDATE content
		SET status = $3,
		    score = $4,
		    priority = $5,
		    category = COALESCE($6, category),
		    tags = $7,
		    metadata = $8,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query,
		id, models.ContentStatusProcessing, models.ContentStatusProcessed,
		score, priority, category, tags, metadata)
	if err != nil {
		return fmt.Errorf("finish scoring: %w", err)
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

// Publish moves PROCESSED content to PUBLISHED and stamps published_at.
func (r *ContentRepository) Publish(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE content
		SET status = $3, published_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query,
		id, models.ContentStatusProcessed, models.ContentStatusPublished, at)
	if err != nil {
		return fmt.Errorf("publish content: %w", err)
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

// UpdateEditable updates reviewer-editable fields in place without touching
// status.
func (r *ContentRepository) UpdateEditable(ctx context.Context, id string, title string, body *string) error {
	query := `
		UPDATE content
		SET title = $2, body = COALESCE($3, body), updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query, id, title, body); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

// SetFlagged records the moderation flag in the content metadata.
func (r *ContentRepository) SetFlagged(ctx context.Context, id string, flagged bool) error {
	query := `
		UPDATE content
		SET metadata = jsonb_set(metadata, '{flagged}', to_jsonb($2::boolean)),
		    updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query, id, flagged); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("flag content: %w", err)
	}
	return nil
}

// AdjustPriority changes priority by delta, floored at floor.
func (r *ContentRepository) AdjustPriority(ctx context.Context, id string, delta, floor int) error {
	query := `
		UPDATE content
		SET priority = GREATEST(priority + $2, $3), updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query, id, delta, floor); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("adjust priority: %w", err)
	}
	return nil
}

// ListPublishedBetween returns published content in [from, to), ordered by
// priority desc, score desc, published_at asc.
func (r *ContentRepository) ListPublishedBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.Content, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content
		WHERE status = $1 AND published_at >= $2 AND published_at < $3
		ORDER BY priority DESC, score DESC NULLS LAST, published_at ASC
		LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, models.ContentStatusPublished, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list published content: %w", err)
	}
	defer rows.Close()

	return scanContents(rows)
}

// ResetStaleProcessing returns content stuck in PROCESSING longer than
// olderThan back to RAW so a crashed scorer never wedges a row.
func (r *ContentRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE content
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < NOW() - $3::interval`

	result, err := r.db.ExecContext(ctx, query,
		models.ContentStatusRaw, models.ContentStatusProcessing, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale processing: %w", err)
	}
	return result.RowsAffected()
}

func scanContent(row rowScanner) (*models.Content, error) {
	var content models.Content
	err := row.Scan(
		&content.ID,
		&content.Title,
		&content.Body,
		&content.URL,
		&content.ImageURL,
		&content.Category,
		&content.Tags,
		&content.Status,
		&content.Score,
		&content.Priority,
		&content.SourceID,
		&content.SourceURL,
		&content.PublishedAt,
		&content.Metadata,
		&content.CreatedAt,
		&content.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

func scanContents(rows *sql.Rows) ([]*models.Content, error) {
	contents := make([]*models.Content, 0)
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return contents, nil
}
