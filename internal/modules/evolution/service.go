package evolution

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/events"
	"github.com/interstitch/sectorwars-intel/internal/locks"
)

const (
	// Evolution gates.
	minUsesBeforeEvolution = 10
	mutateBelowFitness     = 0.3
	breedAboveFitness      = 0.7

	// Perturbation bounds.
	mutationRate       = 0.3  // chance each numeric gene mutates
	mutationMagnitude  = 0.20 // +-20%
	offspringMagnitude = 0.05 // +-5%

	// Fitness blend. Profit and loss normalize against a 1000-credit
	// yardstick.
	successWeight   = 0.4
	profitWeight    = 0.4
	riskWeight      = 0.2
	profitYardstick = 1000.0

	topPatternLimit = 10
)

// guard is the slice of the security guard this service needs.
type guard interface {
	LogEvent(ctx context.Context, playerID, eventType string, severity domain.Severity, eventContext map[string]string)
}

// Service owns the trading-DNA lifecycle.
type Service struct {
	repo     *Repository
	profiles domain.ProfileProvider
	guard    guard
	bus      *events.Bus
	keyLocks *locks.KeyedMutex
	log      zerolog.Logger
	randFn   func() float64
	now      func() time.Time
}

// NewService creates the evolution service.
func NewService(repo *Repository, profiles domain.ProfileProvider, g guard, bus *events.Bus, keyLocks *locks.KeyedMutex, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		guard:    g,
		bus:      bus,
		keyLocks: keyLocks,
		log:      log.With().Str("module", "evolution").Logger(),
		randFn:   rand.Float64,
		now:      time.Now,
	}
}

// RecordTradeOutcome folds one completed real trade into the player's
// DNA. When the trade carries no fingerprint a genome is derived from the
// trade plus the player's profile priors, creating the pattern on first
// sight. After ten uses low-fitness patterns mutate and high-fitness
// patterns breed a single offspring; the parent always survives.
func (s *Service) RecordTradeOutcome(ctx context.Context, playerID string, trade domain.TradeResult) (*TradingPattern, error) {
	if !trade.Commodity.Valid() {
		s.logInvalidInput(ctx, playerID, "commodity", string(trade.Commodity))
		return nil, fmt.Errorf("%w: unknown commodity %q", domain.ErrInvalidInput, trade.Commodity)
	}
	if !trade.Action.Valid() {
		s.logInvalidInput(ctx, playerID, "action", string(trade.Action))
		return nil, fmt.Errorf("%w: unknown trade action %q", domain.ErrInvalidInput, trade.Action)
	}
	if trade.Quantity <= 0 {
		s.logInvalidInput(ctx, playerID, "quantity", fmt.Sprintf("%d", trade.Quantity))
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	fingerprint := trade.Fingerprint
	var genes *Genes
	if fingerprint == "" {
		derived, err := s.deriveGenes(ctx, playerID, trade)
		if err != nil {
			return nil, err
		}
		genes = &derived
		fingerprint = Fingerprint(derived)
	}

	unlock := s.keyLocks.Lock(playerID + "|" + fingerprint)
	defer unlock()

	pattern, err := s.repo.Get(ctx, playerID, fingerprint)
	if err != nil {
		return nil, err
	}
	if pattern == nil {
		if genes == nil {
			s.logInvalidInput(ctx, playerID, "fingerprint", fingerprint)
			return nil, fmt.Errorf("%w: unknown pattern fingerprint %q", domain.ErrInvalidInput, fingerprint)
		}
		pattern = &TradingPattern{
			PlayerID:     playerID,
			Fingerprint:  fingerprint,
			Type:         classifyType(*genes),
			Genes:        *genes,
			Generation:   1,
			Fitness:      0.5,
			Active:       true,
			DiscoveredAt: s.now().UTC(),
		}
		s.log.Info().Str("player_id", playerID).Str("fingerprint", fingerprint).Msg("New trading pattern discovered")
	}

	s.applyOutcome(pattern, trade.Profit)

	if pattern.TimesUsed >= minUsesBeforeEvolution {
		if err := s.evolve(ctx, pattern); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, pattern); err != nil {
		return nil, err
	}
	return pattern, nil
}

// TopPatterns returns the player's fittest active patterns, optionally
// filtered by type.
func (s *Service) TopPatterns(ctx context.Context, playerID, patternType string) ([]TradingPattern, error) {
	switch patternType {
	case "", TypeBulkTrading, TypeHighValue, TypeGeneral:
	default:
		s.logInvalidInput(ctx, playerID, "pattern_type", patternType)
		return nil, fmt.Errorf("%w: unknown pattern type %q", domain.ErrInvalidInput, patternType)
	}
	return s.repo.ListTop(ctx, playerID, patternType, topPatternLimit)
}

func (s *Service) logInvalidInput(ctx context.Context, playerID, field, value string) {
	s.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
		field: value,
	})
}

// deriveGenes builds a genome from the trade and the player's priors.
func (s *Service) deriveGenes(ctx context.Context, playerID string, trade domain.TradeResult) (Genes, error) {
	profile, err := s.profiles.TradingProfile(ctx, playerID)
	if err != nil {
		return Genes{}, fmt.Errorf("%w: profile lookup failed: %v", domain.ErrTransientStore, err)
	}

	quantityScale := float64(trade.Quantity) / 1000
	if quantityScale > 1 {
		quantityScale = 1
	}

	timing := TimingConservative
	if profile.TradesPerDay > 10 {
		timing = TimingAggressive
	}

	lossTolerance := 0.1
	if profile.TotalVolume > 0 {
		lossTolerance = abs(profile.LargestLoss) / profile.TotalVolume
	}

	return Genes{
		RiskAppetite:       profile.RiskScore,
		PreferredCommodity: trade.Commodity,
		QuantityScale:      quantityScale,
		TimingPreference:   timing,
		ProfitThreshold:    profile.AverageProfitMargin,
		LossTolerance:      lossTolerance,
	}, nil
}

// applyOutcome folds one trade into the running metrics. Profitable
// trades feed the success rate and profit average; losses only drag the
// success rate and deepen the worst-loss extreme.
func (s *Service) applyOutcome(pattern *TradingPattern, profit float64) {
	pattern.TimesUsed++
	used := s.now().UTC()
	pattern.LastUsed = &used

	n := float64(pattern.TimesUsed)
	if profit > 0 {
		pattern.SuccessRate = (pattern.SuccessRate*(n-1) + 1) / n
		pattern.AverageProfit = (pattern.AverageProfit*(n-1) + profit) / n
		if profit > pattern.BestProfit {
			pattern.BestProfit = profit
		}
	} else {
		pattern.SuccessRate = pattern.SuccessRate * (n - 1) / n
		if profit < pattern.WorstLoss {
			pattern.WorstLoss = profit
		}
	}

	pattern.Fitness = fitness(pattern)
}

// fitness blends success rate, normalized average profit and an inverse
// worst-loss penalty, capped at 1.
func fitness(pattern *TradingPattern) float64 {
	if pattern.TimesUsed == 0 {
		return 0.5
	}

	score := pattern.SuccessRate * successWeight

	if pattern.AverageProfit > 0 {
		normalized := pattern.AverageProfit / profitYardstick
		if normalized > 1 {
			normalized = 1
		}
		score += normalized * profitWeight
	}

	if pattern.WorstLoss >= -profitYardstick {
		score += (1 + pattern.WorstLoss/profitYardstick) * riskWeight
	}

	if score > 1 {
		return 1
	}
	return score
}

// evolve mutates failing patterns and breeds one offspring from
// successful ones. The parent pattern is never removed.
func (s *Service) evolve(ctx context.Context, pattern *TradingPattern) error {
	switch {
	case pattern.Fitness < mutateBelowFitness:
		s.mutate(pattern)
		s.publishEvolved(pattern, "mutated")
	case pattern.Fitness > breedAboveFitness:
		bred, err := s.repo.HasOffspring(ctx, pattern.PlayerID, pattern.Fingerprint)
		if err != nil {
			return err
		}
		if bred {
			return nil
		}
		if err := s.breed(ctx, pattern); err != nil {
			return err
		}
		s.publishEvolved(pattern, "bred")
	}
	return nil
}

func (s *Service) publishEvolved(pattern *TradingPattern, how string) {
	s.bus.Publish(events.PatternEvolved, map[string]string{
		"player_id":   pattern.PlayerID,
		"fingerprint": pattern.Fingerprint,
		"evolution":   how,
	})
}

// mutate perturbs numeric genes in place, bumps the generation and
// appends a mutation record. The fingerprint stays: the row keeps its
// identity and history across mutations.
func (s *Service) mutate(pattern *TradingPattern) {
	changes := map[string]GeneChange{}
	perturb := func(name string, value *float64) {
		if s.randFn() >= mutationRate {
			return
		}
		old := *value
		*value = old * (1 + (s.randFn()*2-1)*mutationMagnitude)
		changes[name] = GeneChange{Old: old, New: *value}
	}

	perturb("risk_appetite", &pattern.Genes.RiskAppetite)
	perturb("quantity_scale", &pattern.Genes.QuantityScale)
	perturb("profit_threshold", &pattern.Genes.ProfitThreshold)
	perturb("loss_tolerance", &pattern.Genes.LossTolerance)

	pattern.Generation++
	evolved := s.now().UTC()
	pattern.EvolvedAt = &evolved
	pattern.Mutations = append(pattern.Mutations, Mutation{
		Generation: pattern.Generation,
		Type:       "adaptive",
		Changes:    changes,
		OccurredAt: evolved,
	})

	s.log.Info().
		Str("player_id", pattern.PlayerID).
		Str("fingerprint", pattern.Fingerprint).
		Int("generation", pattern.Generation).
		Msg("Trading pattern mutated")
}

// breed derives one offspring with slightly perturbed genes, linked back
// to the parent.
func (s *Service) breed(ctx context.Context, parent *TradingPattern) error {
	genes := parent.Genes
	wobble := func(value *float64) {
		*value *= 1 + (s.randFn()*2-1)*offspringMagnitude
	}
	wobble(&genes.RiskAppetite)
	wobble(&genes.QuantityScale)
	wobble(&genes.ProfitThreshold)
	wobble(&genes.LossTolerance)

	fingerprint := Fingerprint(genes)
	if fingerprint == parent.Fingerprint {
		// Perturbation rounded away; no distinct offspring this time.
		return nil
	}

	existing, err := s.repo.Get(ctx, parent.PlayerID, fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	offspring := &TradingPattern{
		PlayerID:     parent.PlayerID,
		Fingerprint:  fingerprint,
		Type:         parent.Type,
		Genes:        genes,
		Generation:   parent.Generation + 1,
		Parent:       parent.Fingerprint,
		Fitness:      0.5,
		Active:       true,
		DiscoveredAt: s.now().UTC(),
	}
	if err := s.repo.Save(ctx, offspring); err != nil {
		return err
	}

	evolved := s.now().UTC()
	parent.EvolvedAt = &evolved

	s.log.Info().
		Str("player_id", parent.PlayerID).
		Str("parent", parent.Fingerprint).
		Str("offspring", fingerprint).
		Msg("Trading pattern bred offspring")
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
