package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

const (
	httpPrefix    = "http"
	maxFeedBytes  = 10 << 20 // 10 MiB
	rssUserAgent  = "curator/1.0 (+feed ingestion)"
	statusTooMany = http.StatusTooManyRequests
)

// RSSConfig is the typed view of an RSS source's config document.
type RSSConfig struct {
	FeedURL  string `json:"feed_url"`
	MaxItems int    `json:"max_items"`
}

// RSSFetcher fetches and parses RSS and Atom feeds.
type RSSFetcher struct {
	client *http.Client
}

// NewRSSFetcher creates an RSS fetcher. A nil client uses http.DefaultClient.
func NewRSSFetcher(client *http.Client) *RSSFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &RSSFetcher{client: client}
}

// Fetch downloads the configured feed and converts its entries to items.
// Entries without a usable link are skipped.
func (f *RSSFetcher) Fetch(ctx context.Context, cfg models.JSONMap) ([]Item, error) {
	var view RSSConfig
	if err := cfg.Decode(&view); err != nil {
		return nil, fmt.Errorf("%w: parse rss config: %v", ErrTransport, err)
	}
	if view.FeedURL == "" {
		return nil, fmt.Errorf("%w: rss config missing feed_url", ErrTransport)
	}

	body, err := fetchURL(ctx, f.client, view.FeedURL, nil)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %v", ErrTransport, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		if link == "" {
			continue
		}

		item := Item{
			Title:       strings.TrimSpace(entry.Title),
			URL:         link,
			Body:        htmlToText(pickBody(entry)),
			PublishedAt: entry.PublishedParsed,
		}
		if entry.Image != nil {
			item.ImageURL = entry.Image.URL
		}
		items = append(items, item)

		if view.MaxItems > 0 && len(items) >= view.MaxItems {
			break
		}
	}
	return items, nil
}

// extractLink returns the best available URL from a feed entry, preferring
// the explicit link and falling back to a URL-shaped GUID.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, httpPrefix) {
		return entry.GUID
	}
	return ""
}

func pickBody(entry *gofeed.Item) string {
	if entry.Content != "" {
		return entry.Content
	}
	return entry.Description
}

// fetchURL downloads a URL body, mapping HTTP status and transport failures
// onto the fetcher error taxonomy.
func fetchURL(ctx context.Context, client *http.Client, url string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", rssUserAgent)
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == statusTooMany {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	return string(body), nil
}
