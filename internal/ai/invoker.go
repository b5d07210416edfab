// Package ai defines the external AI function contract consumed by the task
// orchestrator, plus the Anthropic-backed implementation.
package ai

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

var (
	// ErrInvocation is returned when the model call fails.
	ErrInvocation = errors.New("ai invocation failed")
	// ErrTimeout is returned when the model call exceeds its deadline.
	ErrTimeout = errors.New("ai invocation timed out")
)

// Invoker is the black-box AI function: JSON in, JSON out, fallible.
// Implementations must honor context cancellation.
type Invoker interface {
	Invoke(ctx context.Context, taskType string, input models.JSONMap) (models.JSONMap, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, taskType string, input models.JSONMap) (models.JSONMap, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, taskType string, input models.JSONMap) (models.JSONMap, error) {
	return f(ctx, taskType, input)
}
