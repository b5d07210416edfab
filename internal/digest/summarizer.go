package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// Summarizer produces the digest title and summary from the selected items.
type Summarizer interface {
	Summarize(ctx context.Context, date string, items []*models.Content) (title, summary string, err error)
}

// HeadlineSummarizer builds a deterministic summary from the top item titles.
// It is the fallback when AI summarization is disabled or fails.
type HeadlineSummarizer struct {
	MaxHeadlines int
}

const defaultMaxHeadlines = 5

func (s *HeadlineSummarizer) Summarize(_ context.Context, date string, items []*models.Content) (string, string, error) {
	title := fmt.Sprintf("Daily digest for %s", date)
	if len(items) == 0 {
		return title, "No content was published on this date.", nil
	}

	maxHeadlines := s.MaxHeadlines
	if maxHeadlines <= 0 {
		maxHeadlines = defaultMaxHeadlines
	}
	if len(items) < maxHeadlines {
		maxHeadlines = len(items)
	}

	headlines := make([]string, 0, maxHeadlines)
	for _, item := range items[:maxHeadlines] {
		headlines = append(headlines, item.Title)
	}

	summary := fmt.Sprintf("%d items published. Top stories: %s.",
		len(items), strings.Join(headlines, "; "))
	return title, summary, nil
}

// TaskService submits summarize tasks and waits for their results.
type TaskService interface {
	Submit(ctx context.Context, taskType string, input models.JSONMap) (*models.AITask, error)
	Await(ctx context.Context, id string) (*models.AITask, error)
}

// TaskSummarizer asks the AI task pipeline for a summary and falls back to
// headlines when the task fails or times out.
type TaskSummarizer struct {
	Tasks    TaskService
	Fallback Summarizer

	// AIWait bounds the wait for the summarize task. Zero means the default;
	// the wait must never be unbounded or a stalled worker wedges the build.
	AIWait time.Duration
}

const defaultSummarizeWait = 2 * time.Minute

func (s *TaskSummarizer) Summarize(ctx context.Context, date string, items []*models.Content) (string, string, error) {
	if len(items) == 0 {
		return s.Fallback.Summarize(ctx, date, items)
	}

	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}

	task, err := s.Tasks.Submit(ctx, models.TaskTypeSummarize, models.JSONMap{
		models.DedupKeyField: "digest:" + date,
		"date":               date,
		"titles":             titles,
	})
	if err != nil {
		return s.Fallback.Summarize(ctx, date, items)
	}

	wait := s.AIWait
	if wait <= 0 {
		wait = defaultSummarizeWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	task, err = s.Tasks.Await(waitCtx, task.ID)
	if err != nil || task.Status != models.TaskStatusSucceeded {
		return s.Fallback.Summarize(ctx, date, items)
	}

	title, _ := task.Output["title"].(string)
	summary, _ := task.Output["summary"].(string)
	if summary == "" {
		return s.Fallback.Summarize(ctx, date, items)
	}
	if title == "" {
		title = fmt.Sprintf("Daily digest for %s", date)
	}
	return title, summary, nil
}
