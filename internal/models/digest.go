package models

import "time"

// DailyDigest is an aggregation snapshot of published content for one
// calendar date. One row per date; a rebuild replaces the row wholesale.
type DailyDigest struct {
	ID         string      `json:"id" db:"id"`
	Date       time.Time   `json:"date" db:"date"`
	Title      string      `json:"title" db:"title"`
	Summary    string      `json:"summary" db:"summary"`
	ContentIDs StringArray `json:"content_ids" db:"content_ids"`
	TotalItems int         `json:"total_items" db:"total_items"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}
