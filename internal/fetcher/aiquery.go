package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/curator/internal/ai"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// AIQueryConfig is the typed view of an AI_QUERY source's config document.
type AIQueryConfig struct {
	Query    string `json:"query"`
	MaxItems int    `json:"max_items"`
}

// AIQueryFetcher produces candidate items by asking the AI function to
// generate them for a configured query. Items have no URL, so dedup falls
// back to the content hash.
type AIQueryFetcher struct {
	invoker ai.Invoker
}

// NewAIQueryFetcher creates an AI-query fetcher.
func NewAIQueryFetcher(invoker ai.Invoker) *AIQueryFetcher {
	return &AIQueryFetcher{invoker: invoker}
}

// Fetch invokes the generate task type and maps the reply onto items.
func (f *AIQueryFetcher) Fetch(ctx context.Context, cfg models.JSONMap) ([]Item, error) {
	var view AIQueryConfig
	if err := cfg.Decode(&view); err != nil {
		return nil, fmt.Errorf("%w: parse ai query config: %v", ErrTransport, err)
	}
	if view.Query == "" {
		return nil, fmt.Errorf("%w: ai query config missing query", ErrTransport)
	}

	output, err := f.invoker.Invoke(ctx, models.TaskTypeGenerate, models.JSONMap{"query": view.Query})
	if err != nil {
		if errors.Is(err, ai.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	rawItems, _ := output["items"].([]any)
	items := make([]Item, 0, len(rawItems))
	for _, raw := range rawItems {
		record, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		item := Item{
			Title: stringField(record, "title"),
			Body:  stringField(record, "body"),
		}
		if item.Title == "" {
			continue
		}
		items = append(items, item)
		if view.MaxItems > 0 && len(items) >= view.MaxItems {
			break
		}
	}
	return items, nil
}
