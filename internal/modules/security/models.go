// Package security implements the access and audit guard: ownership
// checks, anomaly scoring, rate limiting, manipulation detection and the
// append-only security event log.
package security

import (
	"time"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Event type names recorded in the audit trail.
const (
	EventUnauthorizedVisit    = "unauthorized_visit_attempt"
	EventInvalidObservation   = "invalid_market_observation"
	EventForecastGenerated    = "quantum_generation"
	EventRateLimited          = "rate_limit_exceeded"
	EventManipulationDetected = "manipulation_detected"
	EventPriceShift           = "significant_price_change"
	EventInvalidInput         = "invalid_input"
)

// Status is the per-player security read model used by moderation tooling.
type Status struct {
	PlayerID       string                 `json:"player_id"`
	TrustScore     float64                `json:"trust_score"` // 0 (untrusted) to 1 (trusted)
	EventCounts    map[domain.Severity]int `json:"event_counts"`
	FlaggedEvents  int                    `json:"flagged_events"`
	RecentEvents   []domain.SecurityEvent `json:"recent_events"`
	WindowStart    time.Time              `json:"window_start"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

// ManipulationReport summarizes the anonymized-feed analysis for one
// commodity window. It is advisory only: it raises flags, never blocks.
type ManipulationReport struct {
	Commodity      domain.Commodity `json:"commodity"`
	Score          float64          `json:"score"`
	VolumeSpike    bool             `json:"volume_spike"`
	PriceSwing     bool             `json:"price_swing"`
	Concentration  bool             `json:"concentration"`
	Transactions   int              `json:"transactions"`
	WindowDuration time.Duration    `json:"window_duration"`
}
