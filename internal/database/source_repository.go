package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// sourceSelectList is the column list for SELECT on sources (single source
// for schema changes).
const sourceSelectList = `id, name, type, url, status, config, last_fetch_at,
	fetch_count, error_count, last_error, created_at, updated_at`

// SourceRepository manages source rows.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository creates a new repository.
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts a new source.
func (r *SourceRepository) Create(ctx context.Context, source *models.Source) error {
	if !source.Type.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownSourceType, source.Type)
	}
	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusActive
	}
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now

	query := `
		INSERT INTO sources (id, name, type, url, status, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		source.ID,
		source.Name,
		source.Type,
		source.URL,
		source.Status,
		source.Config,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// GetByID returns the source with the given id.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*models.Source, error) {
	query := `SELECT ` + sourceSelectList + ` FROM sources WHERE id = $1`

	source, err := scanSource(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	return source, nil
}

// List returns all sources.
func (r *SourceRepository) List(ctx context.Context) ([]*models.Source, error) {
	query := `SELECT ` + sourceSelectList + ` FROM sources ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	return scanSources(rows)
}

// Update rewrites the editable fields of a source.
func (r *SourceRepository) Update(ctx context.Context, source *models.Source) error {
	if !source.Type.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownSourceType, source.Type)
	}

	query := `
		UPDATE sources
		SET name = $2, type = $3, url = $4, status = $5, config = $6, updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query,
		source.ID, source.Name, source.Type, source.URL, source.Status, source.Config); err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// FetchDue returns fetch candidates: ACTIVE sources plus RATE_LIMITED ones.
// Per-type interval and cool-down filtering happens in the scheduler, which
// owns those tunables.
func (r *SourceRepository) FetchDue(ctx context.Context) ([]*models.Source, error) {
	query := `
		SELECT ` + sourceSelectList + `
		FROM sources
		WHERE status = $1 OR status = $2
		ORDER BY last_fetch_at ASC NULLS FIRST`

	rows, err := r.db.QueryContext(ctx, query, models.SourceStatusActive, models.SourceStatusRateLimited)
	if err != nil {
		return nil, fmt.Errorf("fetch due sources: %w", err)
	}
	defer rows.Close()

	return scanSources(rows)
}

// Reactivate promotes a RATE_LIMITED source back to ACTIVE. No-op when the
// source already moved to a different state.
func (r *SourceRepository) Reactivate(ctx context.Context, id string) error {
	query := `
		UPDATE sources
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	_, err := r.db.ExecContext(ctx, query, id, models.SourceStatusActive, models.SourceStatusRateLimited)
	if err != nil {
		return fmt.Errorf("reactivate source: %w", err)
	}
	return nil
}

// RecordFetchSuccess records a successful fetch: increments fetch_count,
// resets error_count, and restores ACTIVE status.
func (r *SourceRepository) RecordFetchSuccess(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sources
		SET fetch_count = fetch_count + 1,
		    error_count = 0,
		    last_error = NULL,
		    last_fetch_at = $2,
		    status = $3,
		    updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query, id, at, models.SourceStatusActive); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("record fetch success: %w", err)
	}
	return nil
}

// RecordFetchError records a failed fetch. After threshold consecutive
// failures the source transitions to ERROR.
func (r *SourceRepository) RecordFetchError(ctx context.Context, id, errMsg string, threshold int) error {
	query := `
		UPDATE sources
		SET error_count = error_count + 1,
		    last_error = $2,
		    last_fetch_at = NOW(),
		    status = CASE WHEN error_count + 1 >= $3 THEN $4 ELSE status END,
		    updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query, id, errMsg, threshold, models.SourceStatusError); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("record fetch error: %w", err)
	}
	return nil
}

// RecordRateLimit demotes the source to RATE_LIMITED with a resume deadline
// stored in its config document. Rate limiting is a scheduling signal, not a
// failure, so error_count is left alone.
func (r *SourceRepository) RecordRateLimit(ctx context.Context, id string, resumeAt time.Time) error {
	query := `
		UPDATE sources
		SET status = $2,
		    config = jsonb_set(config, '{rate_limit_resume_at}', to_jsonb($3::text)),
		    last_fetch_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`

	if err := execExpectOneRow(ctx, r.db, query, id, models.SourceStatusRateLimited,
		resumeAt.UTC().Format(time.RFC3339)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("record rate limit: %w", err)
	}
	return nil
}

// Delete removes a source and soft-cascades its content: owned rows move to
// REJECTED instead of being deleted, preserving digest references. Runs in a
// single transaction.
func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete source: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rejectQuery := `
		UPDATE content
		SET status = $2, updated_at = NOW()
		WHERE source_id = $1 AND status <> $2`
	if _, execErr := tx.ExecContext(ctx, rejectQuery, id, models.ContentStatusRejected); execErr != nil {
		return fmt.Errorf("reject orphaned content: %w", execErr)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit delete source: %w", commitErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.Source, error) {
	var source models.Source
	err := row.Scan(
		&source.ID,
		&source.Name,
		&source.Type,
		&source.URL,
		&source.Status,
		&source.Config,
		&source.LastFetchAt,
		&source.FetchCount,
		&source.ErrorCount,
		&source.LastError,
		&source.CreatedAt,
		&source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// Unknown persisted states are treated as INACTIVE so the scheduler
	// never fetches a source it cannot reason about.
	if !source.Status.Valid() {
		source.Status = models.SourceStatusInactive
	}
	return &source, nil
}

func scanSources(rows *sql.Rows) ([]*models.Source, error) {
	sources := make([]*models.Source, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// execExpectOneRow runs an exec and returns models.ErrNotFound when no row
// was affected.
func execExpectOneRow(ctx context.Context, db *sql.DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}
