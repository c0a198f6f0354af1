// Package intelligence maintains each player's personal market knowledge:
// the bounded observation series per (port, commodity), the derived
// statistics, and the mined price patterns. Nothing here ever mixes data
// from two players.
package intelligence

import "time"

// Observation is one price/quantity sample the player saw at a port.
// Series are append-only and ordered by timestamp.
type Observation struct {
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Intelligence is the derived market knowledge for one
// (player, port, commodity) key.
type Intelligence struct {
	PlayerID  string `json:"player_id"`
	PortID    string `json:"port_id"`
	SectorID  string `json:"sector_id"`
	Commodity string `json:"commodity"`

	// Observations holds the most recent samples, newest last, bounded
	// by the configured series limit.
	Observations []Observation `json:"observations"`

	AveragePrice float64   `json:"average_price"`
	Volatility   float64   `json:"volatility"` // sample std-dev over the retained series
	DataPoints   int       `json:"data_points"`
	LastVisit    time.Time `json:"last_visit"`

	// DecayedAt anchors the geometric confidence decay. It advances
	// whenever a decay is persisted, so a span of staleness is never
	// decayed twice across the write and read paths.
	DecayedAt time.Time `json:"decayed_at"`

	// Confidence decays geometrically with days since last visit.
	Confidence float64 `json:"confidence"`
	// Quality blends data volume, recency and inverse volatility; it
	// gates forecasting downstream. Capped at 0.99.
	Quality float64 `json:"quality"`

	// Patterns holds up to five mined tags; PatternConfidence tracks an
	// independent confidence per tag, adjusted by validation feedback.
	Patterns          []string           `json:"patterns"`
	PatternConfidence map[string]float64 `json:"pattern_confidence"`
}

// DecayAnchor returns the instant decay is computed from: the last
// persisted decay, or the last visit when none has been applied yet.
func (i *Intelligence) DecayAnchor() time.Time {
	if i.DecayedAt.After(i.LastVisit) {
		return i.DecayedAt
	}
	return i.LastVisit
}

// LatestPrices returns the last n observation prices, oldest first.
func (i *Intelligence) LatestPrices(n int) []float64 {
	obs := i.Observations
	if len(obs) > n {
		obs = obs[len(obs)-n:]
	}
	prices := make([]float64, len(obs))
	for idx, o := range obs {
		prices[idx] = o.Price
	}
	return prices
}
