package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// ActivityRepository manages the append-only user_activities audit log.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new repository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert appends one activity row.
func (r *ActivityRepository) Insert(ctx context.Context, activity *models.UserActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	activity.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO user_activities (id, user_id, action, details, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		activity.ID,
		activity.UserID,
		activity.Action,
		activity.Details,
		activity.IP,
		activity.UserAgent,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user activity: %w", err)
	}
	return nil
}
