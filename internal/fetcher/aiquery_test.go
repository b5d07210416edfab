package fetcher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/curator/internal/ai"
	"github.com/jonesrussell/north-cloud/curator/internal/fetcher"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

func TestAIQueryFetcher_Fetch(t *testing.T) {
	invoker := ai.InvokerFunc(func(_ context.Context, taskType string, input models.JSONMap) (models.JSONMap, error) {
		assert.Equal(t, models.TaskTypeGenerate, taskType)
		assert.Equal(t, "local news", input["query"])
		return models.JSONMap{
			"items": []any{
				map[string]any{"title": "Generated A", "body": "text"},
				map[string]any{"body": "no title, skipped"},
				map[string]any{"title": "Generated B"},
			},
		}, nil
	})

	f := fetcher.NewAIQueryFetcher(invoker)
	items, err := f.Fetch(context.Background(), models.JSONMap{"query": "local news"})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "Generated A", items[0].Title)
	assert.Empty(t, items[0].URL)
}

func TestAIQueryFetcher_Fetch_TimeoutMapsToFetcherTimeout(t *testing.T) {
	invoker := ai.InvokerFunc(func(context.Context, string, models.JSONMap) (models.JSONMap, error) {
		return nil, ai.ErrTimeout
	})

	f := fetcher.NewAIQueryFetcher(invoker)
	_, err := f.Fetch(context.Background(), models.JSONMap{"query": "anything"})
	assert.True(t, errors.Is(err, fetcher.ErrTimeout))
}

func TestAIQueryFetcher_Fetch_MissingQuery(t *testing.T) {
	invoker := ai.InvokerFunc(func(context.Context, string, models.JSONMap) (models.JSONMap, error) {
		t.Fatal("invoker should not be called")
		return nil, nil
	})

	f := fetcher.NewAIQueryFetcher(invoker)
	_, err := f.Fetch(context.Background(), models.JSONMap{})
	assert.ErrorIs(t, err, fetcher.ErrTransport)
}
