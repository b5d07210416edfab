package models

import "time"

// ReviewAction is a human decision applied to content.
type ReviewAction string

const (
	ReviewActionApprove       ReviewAction = "APPROVE"
	ReviewActionReject        ReviewAction = "REJECT"
	ReviewActionEdit          ReviewAction = "EDIT"
	ReviewActionFlag          ReviewAction = "FLAG"
	ReviewActionPriorityBoost ReviewAction = "PRIORITY_BOOST"
	ReviewActionPriorityLower ReviewAction = "PRIORITY_LOWER"
)

// Valid reports whether the action is one of the known actions.
func (a ReviewAction) Valid() bool {
	switch a {
	case ReviewActionApprove, ReviewActionReject, ReviewActionEdit,
		ReviewActionFlag, ReviewActionPriorityBoost, ReviewActionPriorityLower:
		return true
	}
	return false
}

// ContentReview is one accepted review decision. Rows are append-only and
// never updated or deleted.
type ContentReview struct {
	ID        string       `json:"id" db:"id"`
	ContentID string       `json:"content_id" db:"content_id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Action    ReviewAction `json:"action" db:"action"`
	Comment   *string      `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
