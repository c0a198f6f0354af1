// Package ghost evaluates hypothetical trades ("ghost trades") against a
// player's forecast without touching real inventory or credits. Results
// are cached briefly because players poke the same what-if repeatedly
// while deciding.
package ghost

import (
	"time"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Outcome is the ghost trade played out under one quantum state.
type Outcome struct {
	StateID     string  `json:"state_id" msgpack:"state_id"`
	Probability float64 `json:"probability" msgpack:"probability"`
	UnitPrice   float64 `json:"unit_price" msgpack:"unit_price"`
	// Total is the full cost for a buy, or the full revenue for a sell.
	Total float64 `json:"total" msgpack:"total"`
}

// Result is a complete ghost-trade evaluation. The probability-weighted
// expectation over the outcomes drives the recommendation text.
type Result struct {
	PortID         string             `json:"port_id" msgpack:"port_id"`
	Commodity      domain.Commodity   `json:"commodity" msgpack:"commodity"`
	Action         domain.TradeAction `json:"action" msgpack:"action"`
	Quantity       int                `json:"quantity" msgpack:"quantity"`
	Outcomes       []Outcome          `json:"outcomes" msgpack:"outcomes"`
	ExpectedValue  float64            `json:"expected_value" msgpack:"expected_value"`
	Recommendation string             `json:"recommendation" msgpack:"recommendation"`
	EvaluatedAt    time.Time          `json:"evaluated_at" msgpack:"evaluated_at"`

	// Cached marks a result served from the cache rather than recomputed.
	// Transport metadata only: it is never stored and never serialized,
	// so a repeat evaluation within the TTL stays byte-identical. The
	// HTTP layer reports it out of band.
	Cached bool `json:"-" msgpack:"-"`
}
