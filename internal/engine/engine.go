// Package engine composes the intelligence modules behind one facade.
// This is the surface game-event hooks and the HTTP layer talk to; the
// guard's rate limit is applied here, on the query endpoints.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/modules/cascade"
	"github.com/interstitch/sectorwars-intel/internal/modules/evolution"
	"github.com/interstitch/sectorwars-intel/internal/modules/exploration"
	"github.com/interstitch/sectorwars-intel/internal/modules/forecast"
	"github.com/interstitch/sectorwars-intel/internal/modules/ghost"
	"github.com/interstitch/sectorwars-intel/internal/modules/intelligence"
	"github.com/interstitch/sectorwars-intel/internal/modules/security"
)

// Engine is the composed market-intelligence engine.
type Engine struct {
	exploration  *exploration.Service
	intelligence *intelligence.Service
	forecast     *forecast.Generator
	ghost        *ghost.Evaluator
	cascade      *cascade.Planner
	evolution    *evolution.Service
	guard        *security.Guard
	log          zerolog.Logger
}

// New assembles the engine from its modules.
func New(
	explorationSvc *exploration.Service,
	intelligenceSvc *intelligence.Service,
	forecastGen *forecast.Generator,
	ghostEval *ghost.Evaluator,
	cascadePlanner *cascade.Planner,
	evolutionSvc *evolution.Service,
	guard *security.Guard,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		exploration:  explorationSvc,
		intelligence: intelligenceSvc,
		forecast:     forecastGen,
		ghost:        ghostEval,
		cascade:      cascadePlanner,
		evolution:    evolutionSvc,
		guard:        guard,
		log:          log.With().Str("component", "engine").Logger(),
	}
}

// RecordVisit marks a sector visited by the player's ship.
func (e *Engine) RecordVisit(ctx context.Context, playerID, shipID, sectorID string) (*exploration.Record, error) {
	return e.exploration.RecordVisit(ctx, playerID, shipID, sectorID)
}

// HasVisited returns the player's visit count for the sector, 0 if never.
func (e *Engine) HasVisited(ctx context.Context, playerID, sectorID string) (int, error) {
	return e.exploration.HasVisited(ctx, playerID, sectorID)
}

// RecordObservation stores one price sighting and refreshes the derived
// intelligence. The anonymized-feed manipulation check runs afterwards;
// it only ever raises a flag, never blocks the write.
func (e *Engine) RecordObservation(ctx context.Context, playerID, portID, sectorID string, commodity domain.Commodity, price float64, quantity int) (*intelligence.Intelligence, error) {
	intel, err := e.intelligence.RecordObservation(ctx, playerID, portID, sectorID, commodity, price, quantity)
	if err != nil {
		return nil, err
	}
	e.guard.CheckManipulation(ctx, playerID, commodity)
	return intel, nil
}

// GetIntelligence returns the player's derived market knowledge for one
// (port, commodity), or nil when the player has never observed it.
func (e *Engine) GetIntelligence(ctx context.Context, playerID, portID string, commodity domain.Commodity) (*intelligence.Intelligence, error) {
	return e.intelligence.GetIntelligence(ctx, playerID, portID, commodity)
}

// GenerateStates produces the player's four-state forecast. Rate limited.
func (e *Engine) GenerateStates(ctx context.Context, playerID, portID string, commodity domain.Commodity, quantity int) ([]forecast.QuantumState, error) {
	if err := e.guard.AllowQuery(ctx, playerID); err != nil {
		return nil, err
	}
	return e.forecast.GenerateStates(ctx, playerID, portID, commodity, quantity)
}

// EvaluateGhostTrade plays a hypothetical trade through the player's
// forecast. Rate limited; repeat calls within the TTL hit the cache.
func (e *Engine) EvaluateGhostTrade(ctx context.Context, playerID, portID string, commodity domain.Commodity, action domain.TradeAction, quantity int) (*ghost.Result, error) {
	if err := e.guard.AllowQuery(ctx, playerID); err != nil {
		return nil, err
	}
	return e.ghost.Evaluate(ctx, playerID, portID, commodity, action, quantity)
}

// PlanCascade searches the player's explored territory for a profitable
// multi-hop trade route.
func (e *Engine) PlanCascade(ctx context.Context, playerID, startSectorID string, targetProfit float64, maxJumps int) (*cascade.Plan, error) {
	return e.cascade.PlanCascade(ctx, playerID, startSectorID, targetProfit, maxJumps)
}

// RecordTradeOutcome folds a completed real trade into the player's
// trading DNA.
func (e *Engine) RecordTradeOutcome(ctx context.Context, playerID string, trade domain.TradeResult) (*evolution.TradingPattern, error) {
	return e.evolution.RecordTradeOutcome(ctx, playerID, trade)
}

// TopPatterns returns the player's fittest trading patterns.
func (e *Engine) TopPatterns(ctx context.Context, playerID, patternType string) ([]evolution.TradingPattern, error) {
	return e.evolution.TopPatterns(ctx, playerID, patternType)
}

// SweepCache evicts expired ghost-trade cache rows.
func (e *Engine) SweepCache(ctx context.Context) (int64, error) {
	return e.ghost.SweepCache(ctx)
}

// SecurityStatus builds the moderation read model for one player.
func (e *Engine) SecurityStatus(ctx context.Context, playerID string) (*security.Status, error) {
	return e.guard.Status(ctx, playerID)
}
