// Package review applies human review decisions to content as a state
// machine, recording an immutable audit trail.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/events"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// ContentStore is the slice of content persistence the workflow needs.
type ContentStore interface {
	GetByID(ctx context.Context, id string) (*models.Content, error)
	Publish(ctx context.Context, id string, at time.Time) error
	TransitionStatus(ctx context.Context, id string, from, to models.ContentStatus) error
	UpdateEditable(ctx context.Context, id string, title string, body *string) error
	SetFlagged(ctx context.Context, id string, flagged bool) error
	AdjustPriority(ctx context.Context, id string, delta, floor int) error
}

// ReviewStore appends audit rows.
type ReviewStore interface {
	Create(ctx context.Context, review *models.ContentReview) error
}

// ActivityStore appends user activity rows.
type ActivityStore interface {
	Insert(ctx context.Context, activity *models.UserActivity) error
}

// Request is one review action to apply.
type Request struct {
	ContentID string
	UserID    string
	Action    models.ReviewAction
	Comment   *string

	// Edit fields, used only with ReviewActionEdit.
	Title string
	Body  *string

	// Request context for the activity log.
	IP        *string
	UserAgent *string
}

// Workflow validates and applies review actions.
type Workflow struct {
	content    ContentStore
	reviews    ReviewStore
	activities ActivityStore
	publisher  *events.Publisher
	metrics    *metrics.Metrics
	cfg        config.ReviewConfig
	log        logger.Logger
}

// New creates a review workflow.
func New(
	content ContentStore,
	reviews ReviewStore,
	activities ActivityStore,
	publisher *events.Publisher,
	m *metrics.Metrics,
	cfg config.ReviewConfig,
	log logger.Logger,
) *Workflow {
	return &Workflow{
		content:    content,
		reviews:    reviews,
		activities: activities,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

// Apply validates the action against the content's current status and, when
// accepted, mutates the content and appends exactly one audit row. Invalid
// transitions fail with models.ErrContentNotReady or
// models.ErrInvalidTransition and write nothing.
func (w *Workflow) Apply(ctx context.Context, req Request) error {
	if !req.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", models.ErrInvalidTransition, req.Action)
	}

	content, err := w.content.GetByID(ctx, req.ContentID)
	if err != nil {
		return err
	}

	if !content.Status.Reviewable() {
		return fmt.Errorf("%w: content is %s", models.ErrContentNotReady, content.Status)
	}

	if err := w.applyAction(ctx, content, &req); err != nil {
		return err
	}

	review := &models.ContentReview{
		ContentID: req.ContentID,
		UserID:    req.UserID,
		Action:    req.Action,
		Comment:   req.Comment,
	}
	if err := w.reviews.Create(ctx, review); err != nil {
		return fmt.Errorf("append review: %w", err)
	}

	w.recordActivity(ctx, &req)
	w.metrics.ReviewsApplied.WithLabelValues(string(req.Action)).Inc()

	w.log.Info("review applied",
		logger.String("content_id", req.ContentID),
		logger.String("user_id", req.UserID),
		logger.String("action", string(req.Action)))
	return nil
}

func (w *Workflow) applyAction(ctx context.Context, content *models.Content, req *Request) error {
	switch req.Action {
	case models.ReviewActionApprove:
		return w.approve(ctx, content)
	case models.ReviewActionReject:
		return w.reject(ctx, content)
	case models.ReviewActionEdit:
		return w.edit(ctx, content, req)
	case models.ReviewActionFlag:
		return w.flag(ctx, content)
	case models.ReviewActionPriorityBoost:
		return w.content.AdjustPriority(ctx, content.ID, w.cfg.PriorityStep, w.cfg.Floor())
	case models.ReviewActionPriorityLower:
		return w.content.AdjustPriority(ctx, content.ID, -w.cfg.PriorityStep, w.cfg.Floor())
	default:
		return fmt.Errorf("%w: unknown action %q", models.ErrInvalidTransition, req.Action)
	}
}

// approve moves PROCESSED content to PUBLISHED. PUBLISHED and REJECTED are
// terminal for approval.
func (w *Workflow) approve(ctx context.Context, content *models.Content) error {
	if content.Status != models.ContentStatusProcessed {
		return fmt.Errorf("%w: cannot approve %s content", models.ErrInvalidTransition, content.Status)
	}
	if err := w.content.Publish(ctx, content.ID, time.Now().UTC()); err != nil {
		// A concurrent reviewer may have moved the row first; report it as
		// an invalid transition, not a store internals error.
		if errors.Is(err, models.ErrStaleStatus) {
			return fmt.Errorf("%w: content is no longer %s", models.ErrInvalidTransition, content.Status)
		}
		return err
	}

	w.publisher.PublishAsync(events.Event{
		EventType: events.EventContentPublished,
		Payload:   map[string]any{"content_id": content.ID},
	})
	return nil
}

func (w *Workflow) reject(ctx context.Context, content *models.Content) error {
	if content.Status != models.ContentStatusProcessed {
		return fmt.Errorf("%w: cannot reject %s content", models.ErrInvalidTransition, content.Status)
	}
	if err := w.content.TransitionStatus(ctx, content.ID,
		models.ContentStatusProcessed, models.ContentStatusRejected); err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			return fmt.Errorf("%w: content is no longer %s", models.ErrInvalidTransition, content.Status)
		}
		return err
	}

	w.publisher.PublishAsync(events.Event{
		EventType: events.EventContentRejected,
		Payload:   map[string]any{"content_id": content.ID},
	})
	return nil
}

// edit mutates title and body in place without changing status.
func (w *Workflow) edit(ctx context.Context, content *models.Content, req *Request) error {
	if content.Status != models.ContentStatusProcessed {
		return fmt.Errorf("%w: cannot edit %s content", models.ErrInvalidTransition, content.Status)
	}
	title := req.Title
	if title == "" {
		title = content.Title
	}
	return w.content.UpdateEditable(ctx, content.ID, title, req.Body)
}

// flag marks PROCESSED or PUBLISHED content for later moderation without
// changing its status.
func (w *Workflow) flag(ctx context.Context, content *models.Content) error {
	if content.Status != models.ContentStatusProcessed && content.Status != models.ContentStatusPublished {
		return fmt.Errorf("%w: cannot flag %s content", models.ErrInvalidTransition, content.Status)
	}
	return w.content.SetFlagged(ctx, content.ID, true)
}

func (w *Workflow) recordActivity(ctx context.Context, req *Request) {
	activity := &models.UserActivity{
		UserID: req.UserID,
		Action: "content_review:" + string(req.Action),
		Details: models.JSONMap{
			"content_id": req.ContentID,
		},
		IP:        req.IP,
		UserAgent: req.UserAgent,
	}
	if err := w.activities.Insert(ctx, activity); err != nil {
		w.log.Error("failed to record user activity",
			logger.String("user_id", req.UserID), logger.Error(err))
	}
}
