package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/events"
)

const statusWindow = 7 * 24 * time.Hour

// Guard wraps every engine entry point: ownership checks fail closed,
// every rejected or anomalous call lands in the audit trail, and events
// above the anomaly threshold are flagged for review.
type Guard struct {
	verifier  domain.PositionVerifier
	sink      domain.AuditSink
	scorer    *AnomalyScorer
	limiter   *RateLimiter
	detector  *ManipulationDetector
	repo      *AuditRepository
	bus       *events.Bus
	threshold float64
	log       zerolog.Logger
}

// NewGuard creates the access and audit guard.
func NewGuard(
	verifier domain.PositionVerifier,
	sink domain.AuditSink,
	scorer *AnomalyScorer,
	limiter *RateLimiter,
	detector *ManipulationDetector,
	repo *AuditRepository,
	bus *events.Bus,
	anomalyThreshold float64,
	log zerolog.Logger,
) *Guard {
	return &Guard{
		verifier:  verifier,
		sink:      sink,
		scorer:    scorer,
		limiter:   limiter,
		detector:  detector,
		repo:      repo,
		bus:       bus,
		threshold: anomalyThreshold,
		log:       log.With().Str("module", "security").Logger(),
	}
}

// RequireShipControl verifies the player controls the ship. On failure it
// appends a critical event and returns ErrUnauthorized.
func (g *Guard) RequireShipControl(ctx context.Context, playerID, shipID, sectorID string) error {
	ok, err := g.verifier.ControlsShip(ctx, playerID, shipID)
	if err != nil {
		return fmt.Errorf("%w: ship ownership check failed: %v", domain.ErrTransientStore, err)
	}
	if !ok {
		g.LogEvent(ctx, playerID, EventUnauthorizedVisit, domain.SeverityCritical, map[string]string{
			"ship_id":   shipID,
			"sector_id": sectorID,
		})
		return domain.ErrUnauthorized
	}
	return nil
}

// RequireDockedAt verifies the player has a ship docked at the port. On
// failure it appends a critical event and returns ErrUnauthorized.
func (g *Guard) RequireDockedAt(ctx context.Context, playerID, portID string, commodity domain.Commodity) error {
	ok, err := g.verifier.ShipDockedAt(ctx, playerID, portID)
	if err != nil {
		return fmt.Errorf("%w: port presence check failed: %v", domain.ErrTransientStore, err)
	}
	if !ok {
		g.LogEvent(ctx, playerID, EventInvalidObservation, domain.SeverityCritical, map[string]string{
			"port_id":   portID,
			"commodity": string(commodity),
		})
		return domain.ErrUnauthorized
	}
	return nil
}

// AllowQuery applies the per-player rate limit to forecast and ghost
// endpoints, logging a warning event when the budget is exhausted.
func (g *Guard) AllowQuery(ctx context.Context, playerID string) error {
	if g.limiter == nil || g.limiter.Allow(playerID) {
		return nil
	}
	g.LogEvent(ctx, playerID, EventRateLimited, domain.SeverityWarning, nil)
	return domain.ErrRateLimited
}

// CheckManipulation runs the anonymized-feed detector for the commodity
// and, when indicators trip, logs a flagged event. Advisory only.
func (g *Guard) CheckManipulation(ctx context.Context, playerID string, commodity domain.Commodity) {
	if g.detector == nil {
		return
	}
	report := g.detector.Inspect(ctx, commodity)
	if report.Score > manipulationFlagScore {
		g.LogEvent(ctx, playerID, EventManipulationDetected, domain.SeverityWarning, map[string]string{
			"commodity":     string(commodity),
			"score":         fmt.Sprintf("%.2f", report.Score),
			"volume_spike":  fmt.Sprintf("%t", report.VolumeSpike),
			"price_swing":   fmt.Sprintf("%t", report.PriceSwing),
			"concentration": fmt.Sprintf("%t", report.Concentration),
		})
		if g.bus != nil {
			g.bus.Publish(events.ManipulationDetected, report)
		}
	}
}

// LogEvent scores and appends one audit event. Persistence failures are
// logged but never surfaced: an audit hiccup must not fail the caller's
// already-authorized request.
func (g *Guard) LogEvent(ctx context.Context, playerID, eventType string, severity domain.Severity, eventContext map[string]string) {
	score := 0.0
	if g.scorer != nil {
		score = g.scorer.Score(ctx, playerID, eventType)
	}

	event := domain.SecurityEvent{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		EventType:    eventType,
		Severity:     severity,
		AnomalyScore: score,
		Context:      eventContext,
		Flagged:      score > g.threshold,
		CreatedAt:    time.Now().UTC(),
	}

	if err := g.sink.Record(ctx, event); err != nil {
		g.log.Error().Err(err).
			Str("player_id", playerID).
			Str("event_type", eventType).
			Msg("Failed to append security event")
		return
	}

	if event.Flagged {
		g.log.Warn().
			Str("player_id", playerID).
			Str("event_type", eventType).
			Float64("anomaly_score", score).
			Msg("Security event flagged for review")
		if g.bus != nil {
			g.bus.Publish(events.SecurityEventFlagged, event)
		}
	}
}

// Status builds the per-player security read model over the last 7 days.
func (g *Guard) Status(ctx context.Context, playerID string) (*Status, error) {
	if g.repo == nil {
		return nil, fmt.Errorf("audit repository not configured")
	}
	since := time.Now().Add(-statusWindow)
	counts, flagged, recent, err := g.repo.StatusWindow(ctx, playerID, since, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to build security status: %w", err)
	}

	return &Status{
		PlayerID:      playerID,
		TrustScore:    trustScore(counts),
		EventCounts:   counts,
		FlaggedEvents: flagged,
		RecentEvents:  recent,
		WindowStart:   since,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// trustScore starts every player at 1.0 and deducts for recent violations.
func trustScore(counts map[domain.Severity]int) float64 {
	score := 1.0
	score -= 0.2 * float64(counts[domain.SeverityCritical])
	score -= 0.05 * float64(counts[domain.SeverityWarning])
	if score < 0 {
		score = 0
	}
	return score
}
