package scorer

import (
	"math"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

// Result is the scoring outcome for one content item.
type Result struct {
	Score    float64
	Priority int
	Category *string
	Tags     []string
	Metadata models.JSONMap
}

const (
	neutralTrust = 0.5

	// Priority thresholds over the final score.
	highPriorityScore = 0.75
	midPriorityScore  = 0.5

	// Body length at which the substance signal saturates.
	fullBodyLength = 600
)

// baseline computes the deterministic heuristic score: a recency decay with
// a configurable half-life, the source trust weight, and a substance signal
// from the body length.
func (s *Scorer) baseline(content *models.Content, source *models.Source) Result {
	now := time.Now().UTC()

	recency := recencyScore(publishedOrCreated(content), now, s.cfg.RecencyHalfLife)
	trust := s.trustWeight(source)
	substance := substanceScore(content)

	// Recency dominates; trust and substance refine.
	score := clamp01(0.5*recency + 0.3*trust + 0.2*substance)

	metadata := models.JSONMap{}
	for key, val := range content.Metadata {
		metadata[key] = val
	}
	metadata["baseline_score"] = score

	return Result{
		Score:    score,
		Priority: priorityFor(score),
		Metadata: metadata,
	}
}

func (s *Scorer) trustWeight(source *models.Source) float64 {
	if source == nil {
		return neutralTrust
	}
	if weight, ok := s.cfg.TrustWeights[source.Name]; ok {
		return clamp01(weight)
	}
	if weight, ok := s.cfg.TrustWeights[string(source.Type)]; ok {
		return clamp01(weight)
	}
	return neutralTrust
}

// publishedOrCreated prefers the origin publication time recorded at
// ingestion, falling back to row creation.
func publishedOrCreated(content *models.Content) time.Time {
	if raw, ok := content.Metadata["origin_published_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return content.CreatedAt
}

// recencyScore decays exponentially with age: 1.0 fresh, 0.5 at one
// half-life, approaching 0 for old items.
func recencyScore(at, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 || at.After(now) {
		return 1.0
	}
	age := now.Sub(at)
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func substanceScore(content *models.Content) float64 {
	if content.Body == nil {
		return 0
	}
	length := len(*content.Body)
	if length >= fullBodyLength {
		return 1.0
	}
	return float64(length) / fullBodyLength
}

func priorityFor(score float64) int {
	switch {
	case score >= highPriorityScore:
		return 2
	case score >= midPriorityScore:
		return 1
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
