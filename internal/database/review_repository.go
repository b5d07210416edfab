package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// ReviewRepository manages the append-only content_reviews audit trail.
// Rows are never updated or deleted.
type ReviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new repository.
func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create appends one review row.
func (r *ReviewRepository) Create(ctx context.Context, review *models.ContentReview) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	review.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO content_reviews (id, content_id, user_id, action, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		review.ID,
		review.ContentID,
		review.UserID,
		review.Action,
		review.Comment,
		review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert content review: %w", err)
	}
	return nil
}

// ListByContent returns all reviews for a content item, oldest first.
func (r *ReviewRepository) ListByContent(ctx context.Context, contentID string) ([]models.ContentReview, error) {
	query := `
		SELECT id, content_id, user_id, action, comment, created_at
		FROM content_reviews
		WHERE content_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("list content reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]models.ContentReview, 0)
	for rows.Next() {
		var review models.ContentReview
		if scanErr := rows.Scan(
			&review.ID,
			&review.ContentID,
			&review.UserID,
			&review.Action,
			&review.Comment,
			&review.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan content review: %w", scanErr)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content reviews: %w", err)
	}
	return reviews, nil
}
