package ghost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/modules/forecast"
)

// Recommendation bands over the expected value, in credits.
const (
	buyModerateAbove   = 1000.0
	buyHighAbove       = 5000.0
	sellGoodAbove      = 1000.0
	sellExcellentAbove = 5000.0
)

// stateSource is the slice of the forecast module the evaluator needs.
type stateSource interface {
	GenerateStates(ctx context.Context, playerID, portID string, commodity domain.Commodity, quantity int) ([]forecast.QuantumState, error)
}

// guard is the slice of the security guard the evaluator needs.
type guard interface {
	LogEvent(ctx context.Context, playerID, eventType string, severity domain.Severity, eventContext map[string]string)
}

// Evaluator plays hypothetical trades through the player's quantum states.
type Evaluator struct {
	states stateSource
	cache  *Cache
	guard  guard
	log    zerolog.Logger
	now    func() time.Time
}

// NewEvaluator creates a ghost-trade evaluator.
func NewEvaluator(states stateSource, cache *Cache, g guard, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		states: states,
		cache:  cache,
		guard:  g,
		log:    log.With().Str("module", "ghost").Logger(),
		now:    time.Now,
	}
}

// Evaluate runs the hypothetical trade under every quantum state and
// returns the probability-weighted expectation. Identical requests within
// the cache TTL are served from the cache. Forecast preconditions
// (exploration, minimum observations) propagate as errors and are never
// cached.
func (e *Evaluator) Evaluate(ctx context.Context, playerID, portID string, commodity domain.Commodity, action domain.TradeAction, quantity int) (*Result, error) {
	if !action.Valid() {
		e.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"action": string(action),
		})
		return nil, fmt.Errorf("%w: unknown trade action %q", domain.ErrInvalidInput, action)
	}
	if quantity <= 0 {
		e.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"quantity": strconv.Itoa(quantity),
		})
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	key := cacheKey(playerID, portID, commodity, action, quantity)
	if cached, ok := e.cache.Get(ctx, playerID, key); ok {
		e.log.Debug().Str("player_id", playerID).Str("port_id", portID).Msg("Ghost trade served from cache")
		return cached, nil
	}

	states, err := e.states.GenerateStates(ctx, playerID, portID, commodity, quantity)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(states))
	expected := 0.0
	for _, s := range states {
		total := float64(quantity) * s.Price
		outcomes = append(outcomes, Outcome{
			StateID:     s.ID,
			Probability: s.Probability,
			UnitPrice:   s.Price,
			Total:       total,
		})
		expected += s.Probability * total
	}

	result := &Result{
		PortID:         portID,
		Commodity:      commodity,
		Action:         action,
		Quantity:       quantity,
		Outcomes:       outcomes,
		ExpectedValue:  expected,
		Recommendation: recommend(action, expected),
		EvaluatedAt:    e.now().UTC(),
	}

	e.cache.Put(ctx, playerID, key, result)
	return result, nil
}

// SweepCache removes expired cache rows; the scheduler calls it periodically.
func (e *Evaluator) SweepCache(ctx context.Context) (int64, error) {
	return e.cache.Sweep(ctx)
}

// recommend maps the expected value to advisory text. Buys are judged by
// capital outlay, sells by proceeds.
func recommend(action domain.TradeAction, expected float64) string {
	if action == domain.ActionBuy {
		switch {
		case expected < buyModerateAbove:
			return "Low cost opportunity"
		case expected < buyHighAbove:
			return "Moderate investment"
		default:
			return "High investment required"
		}
	}
	switch {
	case expected > sellExcellentAbove:
		return "Excellent selling opportunity"
	case expected > sellGoodAbove:
		return "Good selling opportunity"
	default:
		return "Limited profit potential"
	}
}

// cacheKey derives a stable digest for one (player, trade) combination.
func cacheKey(playerID, portID string, commodity domain.Commodity, action domain.TradeAction, quantity int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s:%d", playerID, portID, commodity, action, quantity)))
	return hex.EncodeToString(sum[:])
}
