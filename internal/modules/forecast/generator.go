package forecast

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/interstitch/sectorwars-intel/internal/config"
	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/modules/intelligence"
)

// forecastWindow bounds how many recent prices feed a forecast.
const forecastWindow = 20

// Pattern adjustment factors, weighted by each tag's own confidence.
const (
	hourHighFactor  = 1.10
	hourLowFactor   = 0.90
	trendUpFactor   = 1.05
	trendDownFactor = 0.95

	fallbackConfidenceRatio = 0.8 // plain-average state runs at 80% of base confidence
	unknownStateConfidence  = 0.1
	unknownPerturbation     = 0.5 // +-50% on the mean price
)

// explorationLedger is the slice of the exploration module the generator needs.
type explorationLedger interface {
	HasVisited(ctx context.Context, playerID, sectorID string) (int, error)
}

// intelligenceStore is the slice of the intelligence module the generator needs.
type intelligenceStore interface {
	GetIntelligence(ctx context.Context, playerID, portID string, commodity domain.Commodity) (*intelligence.Intelligence, error)
}

// guard is the slice of the security guard the generator needs.
type guard interface {
	LogEvent(ctx context.Context, playerID, eventType string, severity domain.Severity, eventContext map[string]string)
}

// Generator produces quantum states from personal market intelligence.
type Generator struct {
	ledger explorationLedger
	store  intelligenceStore
	topo   domain.MapTopology
	guard  guard
	cfg    config.IntelConfig
	log    zerolog.Logger
	randFn func() float64
	now    func() time.Time
}

// NewGenerator creates a forecast generator.
func NewGenerator(ledger explorationLedger, store intelligenceStore, topo domain.MapTopology, g guard, cfg config.IntelConfig, log zerolog.Logger) *Generator {
	return &Generator{
		ledger: ledger,
		store:  store,
		topo:   topo,
		guard:  g,
		cfg:    cfg,
		log:    log.With().Str("module", "forecast").Logger(),
		randFn: rand.Float64,
		now:    time.Now,
	}
}

// GenerateStates produces exactly four weighted price scenarios for the
// (player, port, commodity), or fails with ErrInsufficientExploration /
// ErrInsufficientData when the player's own record cannot support a
// forecast. Every successful call is logged for anomaly baselining.
func (g *Generator) GenerateStates(ctx context.Context, playerID, portID string, commodity domain.Commodity, quantity int) ([]QuantumState, error) {
	if !commodity.Valid() {
		g.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"commodity": string(commodity),
		})
		return nil, fmt.Errorf("%w: unknown commodity %q", domain.ErrInvalidInput, commodity)
	}
	if quantity <= 0 {
		g.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"quantity": strconv.Itoa(quantity),
		})
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	sectorID, err := g.topo.PortSector(ctx, portID)
	if err != nil {
		return nil, fmt.Errorf("%w: port lookup failed: %v", domain.ErrTransientStore, err)
	}

	visits, err := g.ledger.HasVisited(ctx, playerID, sectorID)
	if err != nil {
		return nil, err
	}
	if visits == 0 {
		g.log.Debug().Str("player_id", playerID).Str("sector_id", sectorID).Msg("Forecast refused: sector unexplored")
		return nil, domain.ErrInsufficientExploration
	}

	intel, err := g.store.GetIntelligence(ctx, playerID, portID, commodity)
	if err != nil {
		return nil, err
	}
	if intel == nil || intel.DataPoints < g.cfg.MinDataPoints {
		return nil, fmt.Errorf("%w: need at least %d observations", domain.ErrInsufficientData, g.cfg.MinDataPoints)
	}

	prices := intel.LatestPrices(forecastWindow)
	mean := stat.Mean(prices, nil)
	best, worst := bounds(prices, commodity)

	rationale := fmt.Sprintf("%d personal observations", len(prices))

	states := []QuantumState{
		{
			ID:          StateOptimistic,
			Probability: g.cfg.OptimisticWeight,
			Price:       best,
			Confidence:  intel.Confidence,
			Rationale:   rationale,
		},
		g.patternState(intel, mean),
		{
			ID:          StatePessimistic,
			Probability: g.cfg.PessimisticWeight,
			Price:       worst,
			Confidence:  intel.Confidence,
			Rationale:   rationale,
		},
		{
			ID:          StateUnknown,
			Probability: g.cfg.UnknownWeight,
			Price:       g.perturb(mean),
			Confidence:  unknownStateConfidence,
			Rationale:   "unexplored market conditions",
		},
	}

	g.guard.LogEvent(ctx, playerID, "quantum_generation", domain.SeverityInfo, map[string]string{
		"port_id":     portID,
		"commodity":   string(commodity),
		"states":      strconv.Itoa(len(states)),
		"data_points": strconv.Itoa(intel.DataPoints),
	})

	return states, nil
}

// patternState builds the center state: pattern-adjusted when tags exist,
// otherwise the plain mean at reduced confidence.
func (g *Generator) patternState(intel *intelligence.Intelligence, mean float64) QuantumState {
	if len(intel.Patterns) == 0 {
		return QuantumState{
			ID:          StateAverage,
			Probability: g.cfg.PatternWeight,
			Price:       mean,
			Confidence:  intel.Confidence * fallbackConfidenceRatio,
			Rationale:   "historical average",
		}
	}

	price := mean
	hour := g.now().UTC().Hour()
	for _, tag := range intel.Patterns {
		factor, applies := adjustmentFor(tag, hour)
		if !applies {
			continue
		}
		confidence := intel.PatternConfidence[tag]
		price *= 1 + (factor-1)*confidence
	}

	primary := intel.Patterns[0]
	return QuantumState{
		ID:          StatePatternBased,
		Probability: g.cfg.PatternWeight,
		Price:       price,
		Confidence:  intel.PatternConfidence[primary],
		Rationale:   primary,
	}
}

// adjustmentFor maps a pattern tag to its multiplicative price factor.
// Hour-bias tags only apply during their hour.
func adjustmentFor(tag string, hour int) (float64, bool) {
	switch {
	case strings.HasPrefix(tag, "high_hour_"):
		if tagHour(tag) == hour {
			return hourHighFactor, true
		}
	case strings.HasPrefix(tag, "low_hour_"):
		if tagHour(tag) == hour {
			return hourLowFactor, true
		}
	case tag == intelligence.TagRisingTrend:
		return trendUpFactor, true
	case tag == intelligence.TagFallingTrend:
		return trendDownFactor, true
	}
	return 1, false
}

func tagHour(tag string) int {
	parts := strings.Split(tag, "_")
	h, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return -1
	}
	return h
}

// bounds returns the (favorable, unfavorable) historical extremes for the
// player: ports sell bulk goods, so a high price favors the player
// selling them back; for the rest the directions flip.
func bounds(prices []float64, commodity domain.Commodity) (best, worst float64) {
	min, max := prices[0], prices[0]
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if commodity.PortSold() {
		return max, min
	}
	return min, max
}

// perturb models conditions beyond the player's experience: the mean
// shifted by half, in a random direction.
func (g *Generator) perturb(mean float64) float64 {
	if g.randFn() < 0.5 {
		return mean * (1 - unknownPerturbation)
	}
	return mean * (1 + unknownPerturbation)
}
