package models

import "errors"

// Common errors
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateContent is returned when content with the same dedup key
	// already exists for a source.
	ErrDuplicateContent = errors.New("duplicate content for source")

	// ErrContentNotReady is returned when a review action targets content
	// that has not finished processing.
	ErrContentNotReady = errors.New("content not ready for review")

	// ErrInvalidTransition is returned when a review action is not valid
	// for the content's current status.
	ErrInvalidTransition = errors.New("invalid content status transition")

	// ErrUnknownSourceType is returned when no fetcher is registered for a
	// source's type.
	ErrUnknownSourceType = errors.New("unknown source type")

	// ErrStaleStatus is returned when a conditional status update matched
	// no row, meaning another worker already moved the row on.
	ErrStaleStatus = errors.New("status precondition not met")
)
