package models

import "time"

// UserActivity is one append-only audit log entry. The pipeline only ever
// writes these rows.
type UserActivity struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Details   JSONMap   `json:"details,omitempty" db:"details"`
	IP        *string   `json:"ip,omitempty" db:"ip"`
	UserAgent *string   `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SystemConfig is one key→document row of pipeline tunables.
type SystemConfig struct {
	Key       string    `json:"key" db:"key"`
	Value     JSONMap   `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SystemConfig keys layered over file/env configuration at startup.
const (
	ConfigKeyFetchIntervals    = "fetch_intervals"
	ConfigKeyScoringThresholds = "scoring_thresholds"
	ConfigKeyTaskRetry         = "task_retry"
	ConfigKeyDigestCutoffHour  = "digest_cutoff_hour"
)
