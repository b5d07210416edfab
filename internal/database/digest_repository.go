package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// DigestRepository manages daily_digests rows.
type DigestRepository struct {
	db *sql.DB
}

// NewDigestRepository creates a new repository.
func NewDigestRepository(db *sql.DB) *DigestRepository {
	return &DigestRepository{db: db}
}

// UpsertByDate writes the digest for its date, replacing content_ids,
// total_items, title, and summary wholesale on rebuild.
func (r *DigestRepository) UpsertByDate(ctx context.Context, digest *models.DailyDigest) error {
	if digest.ID == "" {
		digest.ID = uuid.New().String()
	}

	query := `
		INSERT INTO daily_digests (id, date, title, summary, content_ids, total_items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (date) DO UPDATE
		SET title = EXCLUDED.title,
		    summary = EXCLUDED.summary,
		    content_ids = EXCLUDED.content_ids,
		    total_items = EXCLUDED.total_items,
		    updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		digest.ID,
		digest.Date,
		digest.Title,
		digest.Summary,
		digest.ContentIDs,
		digest.TotalItems,
	)
	if err != nil {
		return fmt.Errorf("upsert digest: %w", err)
	}
	return nil
}

// GetByDate returns the digest for a calendar date.
func (r *DigestRepository) GetByDate(ctx context.Context, date string) (*models.DailyDigest, error) {
	query := `
		SELECT id, date, title, summary, content_ids, total_items, created_at, updated_at
		FROM daily_digests
		WHERE date = $1`

	var digest models.DailyDigest
	err := r.db.QueryRowContext(ctx, query, date).Scan(
		&digest.ID,
		&digest.Date,
		&digest.Title,
		&digest.Summary,
		&digest.ContentIDs,
		&digest.TotalItems,
		&digest.CreatedAt,
		&digest.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query digest: %w", err)
	}
	return &digest, nil
}
