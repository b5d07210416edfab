package models

import "time"

// SourceType identifies the fetch strategy used for a source.
type SourceType string

const (
	SourceTypeRSS     SourceType = "RSS"
	SourceTypeAPI     SourceType = "API"
	SourceTypeAIQuery SourceType = "AI_QUERY"
	SourceTypeEmail   SourceType = "EMAIL"
	SourceTypeManual  SourceType = "MANUAL"
)

// Valid reports whether the source type is one of the known types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeRSS, SourceTypeAPI, SourceTypeAIQuery, SourceTypeEmail, SourceTypeManual:
		return true
	}
	return false
}

// SourceStatus is the health state of a source.
type SourceStatus string

const (
	SourceStatusActive      SourceStatus = "ACTIVE"
	SourceStatusInactive    SourceStatus = "INACTIVE"
	SourceStatusError       SourceStatus = "ERROR"
	SourceStatusRateLimited SourceStatus = "RATE_LIMITED"
)

// Valid reports whether the status is one of the known states.
func (s SourceStatus) Valid() bool {
	switch s {
	case SourceStatusActive, SourceStatusInactive, SourceStatusError, SourceStatusRateLimited:
		return true
	}
	return false
}

// Source represents a configured origin of content.
type Source struct {
	ID          string       `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Type        SourceType   `json:"type" db:"type"`
	URL         string       `json:"url,omitempty" db:"url"`
	Status      SourceStatus `json:"status" db:"status"`
	Config      JSONMap      `json:"config" db:"config"`
	LastFetchAt *time.Time   `json:"last_fetch_at,omitempty" db:"last_fetch_at"`
	FetchCount  int          `json:"fetch_count" db:"fetch_count"`
	ErrorCount  int          `json:"error_count" db:"error_count"`
	LastError   *string      `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// rateLimitResumeKey is the config key holding the RATE_LIMITED cool-down
// deadline, stored as RFC3339.
const rateLimitResumeKey = "rate_limit_resume_at"

// RateLimitResumeAt returns the cool-down deadline recorded when the source
// was rate limited, or the zero time when none is set.
func (s *Source) RateLimitResumeAt() time.Time {
	if s.Config == nil {
		return time.Time{}
	}
	raw, ok := s.Config[rateLimitResumeKey].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetRateLimitResumeAt records the cool-down deadline in the source config.
func (s *Source) SetRateLimitResumeAt(t time.Time) {
	if s.Config == nil {
		s.Config = JSONMap{}
	}
	s.Config[rateLimitResumeKey] = t.UTC().Format(time.RFC3339)
}
