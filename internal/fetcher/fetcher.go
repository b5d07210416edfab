// Package fetcher provides pluggable fetch strategies for content sources.
// One fetcher is registered per source type; the ingestion scheduler
// resolves a source's fetcher through the Registry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

var (
	// ErrTransport is returned for network and protocol failures.
	ErrTransport = errors.New("fetch transport error")
	// ErrTimeout is returned when a fetch exceeds its deadline.
	ErrTimeout = errors.New("fetch timed out")
	// ErrRateLimited signals the origin asked us to back off. Not a
	// failure: the scheduler demotes the source to RATE_LIMITED.
	ErrRateLimited = errors.New("fetch rate limited")
)

// Item is one candidate raw item produced by a fetch.
type Item struct {
	Title       string
	URL         string
	Body        string
	ImageURL    string
	PublishedAt *time.Time
}

// Fetcher produces candidate items for a source. The config document is the
// source's opaque config; each implementation parses its own typed view.
type Fetcher interface {
	Fetch(ctx context.Context, cfg models.JSONMap) ([]Item, error)
}

// Registry maps source types to fetch strategies.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[models.SourceType]Fetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[models.SourceType]Fetcher)}
}

// Register installs the fetcher for a source type, replacing any previous
// registration.
func (r *Registry) Register(t models.SourceType, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[t] = f
}

// Resolve returns the fetcher for a source type.
func (r *Registry) Resolve(t models.SourceType) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSourceType, t)
	}
	return f, nil
}
