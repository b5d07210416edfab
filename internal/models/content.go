package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentStatus is the pipeline state of a content item.
type ContentStatus string

const (
	ContentStatusRaw        ContentStatus = "RAW"
	ContentStatusProcessing ContentStatus = "PROCESSING"
	ContentStatusProcessed  ContentStatus = "PROCESSED"
	ContentStatusReviewed   ContentStatus = "REVIEWED"
	ContentStatusPublished  ContentStatus = "PUBLISHED"
	ContentStatusRejected   ContentStatus = "REJECTED"
)

// Valid reports whether the status is one of the known states.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusRaw, ContentStatusProcessing, ContentStatusProcessed,
		ContentStatusReviewed, ContentStatusPublished, ContentStatusRejected:
		return true
	}
	return false
}

// Reviewable reports whether human review actions apply in this state.
// RAW and PROCESSING content has not finished scoring yet.
func (s ContentStatus) Reviewable() bool {
	switch s {
	case ContentStatusProcessed, ContentStatusReviewed, ContentStatusPublished, ContentStatusRejected:
		return true
	}
	return false
}

// Content represents a single ingested item moving through the pipeline.
type Content struct {
	ID          string        `json:"id" db:"id"`
	Title       string        `json:"title" db:"title"`
	Body        *string       `json:"body,omitempty" db:"body"`
	URL         string        `json:"url" db:"url"`
	ImageURL    *string       `json:"image_url,omitempty" db:"image_url"`
	Category    *string       `json:"category,omitempty" db:"category"`
	Tags        StringArray   `json:"tags" db:"tags"`
	Status      ContentStatus `json:"status" db:"status"`
	Score       *float64      `json:"score,omitempty" db:"score"`
	Priority    int           `json:"priority" db:"priority"`
	SourceID    string        `json:"source_id" db:"source_id"`
	SourceURL   *string       `json:"source_url,omitempty" db:"source_url"`
	PublishedAt *time.Time    `json:"published_at,omitempty" db:"published_at"`
	Metadata    JSONMap       `json:"metadata" db:"metadata"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// DedupKey returns the duplicate-detection key for the item within its
// source: the URL when present, otherwise a hash of title and body.
func (c *Content) DedupKey() string {
	if c.URL != "" {
		return c.URL
	}
	body := ""
	if c.Body != nil {
		body = *c.Body
	}
	return ContentHash(c.Title, body)
}

// ContentHash returns a stable hex digest of title and body, used as the
// dedup key for items without a URL.
func ContentHash(title, body string) string {
	h := sha256.Sum256([]byte(title + "\x00" + body))
	return hex.EncodeToString(h[:])
}

// ContentTag is a single tag attached to a content item, unique per
// (content_id, tag).
type ContentTag struct {
	ID        string    `json:"id" db:"id"`
	ContentID string    `json:"content_id" db:"content_id"`
	Tag       string    `json:"tag" db:"tag"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
