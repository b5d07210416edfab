package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// SysConfigRepository manages the system_config key→document store.
type SysConfigRepository struct {
	db *sql.DB
}

// NewSysConfigRepository creates a new repository.
func NewSysConfigRepository(db *sql.DB) *SysConfigRepository {
	return &SysConfigRepository{db: db}
}

// Get returns the value document for a key.
func (r *SysConfigRepository) Get(ctx context.Context, key string) (models.JSONMap, error) {
	var value models.JSONMap
	query := `SELECT value FROM system_config WHERE key = $1`
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query system config: %w", err)
	}
	return value, nil
}

// GetAll returns every stored tunable keyed by name.
func (r *SysConfigRepository) GetAll(ctx context.Context) (map[string]models.JSONMap, error) {
	query := `SELECT key, value FROM system_config ORDER BY key`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list system config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]models.JSONMap)
	for rows.Next() {
		var key string
		var value models.JSONMap
		if scanErr := rows.Scan(&key, &value); scanErr != nil {
			return nil, fmt.Errorf("scan system config: %w", scanErr)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate system config: %w", err)
	}
	return values, nil
}

// Set writes the value document for a key.
func (r *SysConfigRepository) Set(ctx context.Context, key string, value models.JSONMap) error {
	query := `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set system config: %w", err)
	}
	return nil
}
