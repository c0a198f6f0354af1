// Package forecast turns a player's market intelligence into a small set
// of weighted future-price scenarios ("quantum states"). Everything here
// is derived from the player's own observations and is never persisted.
package forecast

// State IDs produced by the generator.
const (
	StateOptimistic   = "optimistic"
	StatePatternBased = "pattern_based"
	StateAverage      = "average"
	StatePessimistic  = "pessimistic"
	StateUnknown      = "unknown"
)

// QuantumState is one weighted hypothetical price scenario. A full set's
// probabilities sum to 1 within rounding.
type QuantumState struct {
	ID          string  `json:"state_id"`
	Probability float64 `json:"probability"`
	Price       float64 `json:"price"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"based_on"`
}
