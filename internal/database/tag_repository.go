package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// TagRepository manages content_tags rows.
type TagRepository struct {
	db *sql.DB
}

// NewTagRepository creates a new repository.
func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Upsert inserts the tag for the content, ignoring a duplicate. Tags are
// unique per (content_id, tag).
func (r *TagRepository) Upsert(ctx context.Context, contentID, tag string) error {
	query := `
		INSERT INTO content_tags (id, content_id, tag, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (content_id, tag) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), contentID, tag); err != nil {
		return fmt.Errorf("upsert content tag: %w", err)
	}
	return nil
}

// UpsertAll upserts every tag in order.
func (r *TagRepository) UpsertAll(ctx context.Context, contentID string, tags []string) error {
	for _, tag := range tags {
		if err := r.Upsert(ctx, contentID, tag); err != nil {
			return err
		}
	}
	return nil
}

// ListByContent returns the tags for a content item in insertion order.
func (r *TagRepository) ListByContent(ctx context.Context, contentID string) ([]models.ContentTag, error) {
	query := `
		SELECT id, content_id, tag, created_at
		FROM content_tags
		WHERE content_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("list content tags: %w", err)
	}
	defer rows.Close()

	tags := make([]models.ContentTag, 0)
	for rows.Next() {
		var tag models.ContentTag
		if scanErr := rows.Scan(&tag.ID, &tag.ContentID, &tag.Tag, &tag.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan content tag: %w", scanErr)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content tags: %w", err)
	}
	return tags, nil
}
