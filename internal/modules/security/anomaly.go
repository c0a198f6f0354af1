package security

import (
	"context"
	"time"
)

// burstWindow and burstThreshold bound the forecast-burst heuristic: more
// than burstThreshold forecast generations inside burstWindow adds to the
// anomaly score.
const (
	burstWindow    = time.Minute
	burstThreshold = 10
)

// eventCounter is the slice of the audit repository the scorer needs.
type eventCounter interface {
	CountByType(ctx context.Context, playerID, eventType string, since time.Time) (int, error)
}

// AnomalyScorer assigns a 0-1 score to security events from fixed
// heuristics. Scores above the guard's threshold flag the event for review.
type AnomalyScorer struct {
	counter eventCounter
}

// NewAnomalyScorer creates an anomaly scorer backed by the audit trail.
func NewAnomalyScorer(counter eventCounter) *AnomalyScorer {
	return &AnomalyScorer{counter: counter}
}

// Score computes the anomaly score for one event. Scoring failures
// degrade to the base score: the event is still logged either way.
func (s *AnomalyScorer) Score(ctx context.Context, playerID, eventType string) float64 {
	score := 0.0

	switch eventType {
	case EventUnauthorizedVisit, EventInvalidObservation:
		score += 0.8
	case EventManipulationDetected:
		score += 0.9
	case EventRateLimited:
		score += 0.3
	case EventForecastGenerated:
		if s.counter != nil {
			count, err := s.counter.CountByType(ctx, playerID, EventForecastGenerated, time.Now().Add(-burstWindow))
			if err == nil && count > burstThreshold {
				score += 0.3
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
