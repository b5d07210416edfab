package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// APIConfig is the typed view of an API source's config document. The
// endpoint must return a JSON array of objects; the field names map response
// keys onto item fields.
type APIConfig struct {
	Endpoint       string            `json:"endpoint"`
	Headers        map[string]string `json:"headers"`
	ItemsPath      string            `json:"items_path"`
	TitleField     string            `json:"title_field"`
	URLField       string            `json:"url_field"`
	BodyField      string            `json:"body_field"`
	ImageField     string            `json:"image_field"`
	PublishedField string            `json:"published_field"`
	MaxItems       int               `json:"max_items"`
}

func (c *APIConfig) setDefaults() {
	if c.TitleField == "" {
		c.TitleField = "title"
	}
	if c.URLField == "" {
		c.URLField = "url"
	}
	if c.BodyField == "" {
		c.BodyField = "body"
	}
	if c.ImageField == "" {
		c.ImageField = "image_url"
	}
	if c.PublishedField == "" {
		c.PublishedField = "published_at"
	}
}

// APIFetcher pulls candidate items from a JSON HTTP endpoint.
type APIFetcher struct {
	client *http.Client
}

// NewAPIFetcher creates an API fetcher. A nil client uses http.DefaultClient.
func NewAPIFetcher(client *http.Client) *APIFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &APIFetcher{client: client}
}

// Fetch calls the configured endpoint and maps the response onto items.
func (f *APIFetcher) Fetch(ctx context.Context, cfg models.JSONMap) ([]Item, error) {
	var view APIConfig
	if err := cfg.Decode(&view); err != nil {
		return nil, fmt.Errorf("%w: parse api config: %v", ErrTransport, err)
	}
	if view.Endpoint == "" {
		return nil, fmt.Errorf("%w: api config missing endpoint", ErrTransport)
	}
	view.setDefaults()

	body, err := f.get(ctx, &view)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(body, view.ItemsPath)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(records))
	for _, record := range records {
		item := mapRecord(record, &view)
		if item.Title == "" && item.URL == "" {
			continue
		}
		items = append(items, item)
		if view.MaxItems > 0 && len(items) >= view.MaxItems {
			break
		}
	}
	return items, nil
}

func (f *APIFetcher) get(ctx context.Context, view *APIConfig) ([]byte, error) {
	headers := map[string]string{"Accept": "application/json"}
	for key, val := range view.Headers {
		headers[key] = val
	}

	body, err := fetchURL(ctx, f.client, view.Endpoint, headers)
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// decodeRecords parses the response body into a list of objects. When
// itemsPath is set the list is read from that top-level key, which covers
// envelope responses like {"items": [...]}.
func decodeRecords(body []byte, itemsPath string) ([]map[string]any, error) {
	if itemsPath != "" {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: decode response envelope: %v", ErrTransport, err)
		}
		raw, ok := envelope[itemsPath]
		if !ok {
			return nil, fmt.Errorf("%w: response missing %q", ErrTransport, itemsPath)
		}
		body = raw
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: decode response items: %v", ErrTransport, err)
	}
	return records, nil
}

func mapRecord(record map[string]any, view *APIConfig) Item {
	item := Item{
		Title:    stringField(record, view.TitleField),
		URL:      stringField(record, view.URLField),
		Body:     stringField(record, view.BodyField),
		ImageURL: stringField(record, view.ImageField),
	}
	if raw := stringField(record, view.PublishedField); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			item.PublishedAt = &t
		}
	}
	return item
}

func stringField(record map[string]any, key string) string {
	val, _ := record[key].(string)
	return val
}
