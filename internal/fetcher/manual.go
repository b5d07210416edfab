package fetcher

import (
	"context"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// ManualFetcher is the strategy for MANUAL sources. Content arrives through
// direct creation rather than fetching, so a scheduled fetch yields nothing.
type ManualFetcher struct{}

// NewManualFetcher creates a manual fetcher.
func NewManualFetcher() *ManualFetcher {
	return &ManualFetcher{}
}

// Fetch always returns an empty item list.
func (f *ManualFetcher) Fetch(_ context.Context, _ models.JSONMap) ([]Item, error) {
	return []Item{}, nil
}
