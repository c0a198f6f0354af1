package intelligence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/interstitch/sectorwars-intel/internal/config"
	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/locks"
)

// Quality blend weights: data volume 40%, recency 40%, inverse
// volatility 20%, capped at 0.99.
const (
	qualityDataWeight       = 0.4
	qualityRecencyWeight    = 0.4
	qualityVolatilityWeight = 0.2
	qualityCap              = 0.99
	qualityRecencyHorizon   = 30.0  // days until recency contributes zero
	qualityVolatilityScale  = 100.0 // volatility that zeroes the inverse-volatility term
	confidenceCap           = 0.95
	confidenceScale         = 20.0 // data points for full confidence

	// significantPriceShift triggers an audit event when a new sample
	// moves at least this fraction from the running average.
	significantPriceShift = 0.20

	defaultTagConfidence = 0.5
	tagFeedbackStep      = 0.1
)

// guard is the slice of the security guard this service needs.
type guard interface {
	RequireDockedAt(ctx context.Context, playerID, portID string, commodity domain.Commodity) error
	LogEvent(ctx context.Context, playerID, eventType string, severity domain.Severity, eventContext map[string]string)
}

// Service is the observation store and market intelligence API.
type Service struct {
	repo  *Repository
	guard guard
	km    *locks.KeyedMutex
	cfg   config.IntelConfig
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates the intelligence service.
func NewService(repo *Repository, g guard, km *locks.KeyedMutex, cfg config.IntelConfig, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		guard: g,
		km:    km,
		cfg:   cfg,
		log:   log.With().Str("module", "intelligence").Logger(),
		now:   time.Now,
	}
}

// RecordObservation appends one price sample for (player, port, commodity)
// after verifying the player is actually docked there. The bounded series,
// statistics, pattern tags and quality are all recomputed inside a per-key
// critical section so concurrent writes can never lose an update.
func (s *Service) RecordObservation(ctx context.Context, playerID, portID, sectorID string, commodity domain.Commodity, price float64, quantity int) (*Intelligence, error) {
	if !commodity.Valid() {
		s.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"commodity": string(commodity),
		})
		return nil, fmt.Errorf("%w: unknown commodity %q", domain.ErrInvalidInput, commodity)
	}
	if price <= 0 || quantity <= 0 {
		s.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"price":    fmt.Sprintf("%.2f", price),
			"quantity": fmt.Sprintf("%d", quantity),
		})
		return nil, fmt.Errorf("%w: price and quantity must be positive", domain.ErrInvalidInput)
	}

	if err := s.guard.RequireDockedAt(ctx, playerID, portID, commodity); err != nil {
		return nil, err
	}

	unlock := s.km.Lock(playerID + "|" + portID + "|" + string(commodity))
	defer unlock()

	now := s.now().UTC()

	intel, err := s.repo.Get(ctx, playerID, portID, string(commodity))
	if err != nil {
		return nil, err
	}
	if intel == nil {
		intel = &Intelligence{
			PlayerID:          playerID,
			PortID:            portID,
			SectorID:          sectorID,
			Commodity:         string(commodity),
			PatternConfidence: map[string]float64{},
		}
	}

	previousAverage := intel.AveragePrice

	intel.Observations = append(intel.Observations, Observation{
		Price:     price,
		Quantity:  quantity,
		Timestamp: now,
	})
	if len(intel.Observations) > s.cfg.MaxObservations {
		intel.Observations = intel.Observations[len(intel.Observations)-s.cfg.MaxObservations:]
	}
	intel.DataPoints++
	intel.LastVisit = now
	intel.DecayedAt = now

	prices := intel.LatestPrices(s.cfg.MaxObservations)
	intel.AveragePrice = stat.Mean(prices, nil)
	if len(prices) > 1 {
		intel.Volatility = math.Sqrt(stat.Variance(prices, nil))
	} else {
		intel.Volatility = 0
	}

	s.refreshPatterns(intel)
	intel.Confidence = math.Min(float64(intel.DataPoints)/confidenceScale, confidenceCap)
	intel.Quality = qualityScore(intel.DataPoints, now, intel.LastVisit, intel.Volatility)

	if err := s.repo.Save(ctx, intel); err != nil {
		return nil, err
	}

	// Knowledge about the rest of the sector ages with every fresh look
	// at any one market in it.
	if err := s.repo.DecaySector(ctx, playerID, sectorID, portID, string(commodity), s.cfg.DailyDecay, now); err != nil {
		s.log.Warn().Err(err).Str("sector_id", sectorID).Msg("Sector decay pass failed")
	}

	if previousAverage > 0 {
		shift := math.Abs(price-previousAverage) / previousAverage
		if shift >= significantPriceShift {
			s.guard.LogEvent(ctx, playerID, "significant_price_change", domain.SeverityInfo, map[string]string{
				"port_id":       portID,
				"commodity":     string(commodity),
				"old_average":   fmt.Sprintf("%.2f", previousAverage),
				"new_price":     fmt.Sprintf("%.2f", price),
				"shift_percent": fmt.Sprintf("%.1f", shift*100),
			})
		}
	}

	s.log.Debug().
		Str("player_id", playerID).
		Str("port_id", portID).
		Str("commodity", string(commodity)).
		Int("data_points", intel.DataPoints).
		Float64("average", intel.AveragePrice).
		Msg("Market observation recorded")

	return intel, nil
}

// GetIntelligence returns the player's intelligence with lazily-applied
// confidence decay. The decayed values are not persisted here; the next
// write refreshes them.
func (s *Service) GetIntelligence(ctx context.Context, playerID, portID string, commodity domain.Commodity) (*Intelligence, error) {
	intel, err := s.repo.Get(ctx, playerID, portID, string(commodity))
	if err != nil || intel == nil {
		return intel, err
	}
	s.applyLazyDecay(intel)
	return intel, nil
}

// ListByPlayer returns a decayed snapshot of the player's entire holding.
func (s *Service) ListByPlayer(ctx context.Context, playerID string) ([]Intelligence, error) {
	intels, err := s.repo.ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	for i := range intels {
		s.applyLazyDecay(&intels[i])
	}
	return intels, nil
}

// RecordPatternFeedback adjusts one tag's confidence after a prediction
// was validated against a real outcome.
func (s *Service) RecordPatternFeedback(ctx context.Context, playerID, portID string, commodity domain.Commodity, tag string, success bool) error {
	unlock := s.km.Lock(playerID + "|" + portID + "|" + string(commodity))
	defer unlock()

	intel, err := s.repo.Get(ctx, playerID, portID, string(commodity))
	if err != nil {
		return err
	}
	if intel == nil {
		return fmt.Errorf("%w: no intelligence for %s/%s", domain.ErrInsufficientData, portID, commodity)
	}

	current, ok := intel.PatternConfidence[tag]
	if !ok {
		current = defaultTagConfidence
	}
	if success {
		current += tagFeedbackStep
	} else {
		current -= tagFeedbackStep
	}
	intel.PatternConfidence[tag] = clamp01(current)

	return s.repo.Save(ctx, intel)
}

// refreshPatterns re-mines tags and carries per-tag confidence across,
// seeding new tags at the default.
func (s *Service) refreshPatterns(intel *Intelligence) {
	tags := MinePatterns(intel.Observations)
	confidence := make(map[string]float64, len(tags))
	for _, tag := range tags {
		if existing, ok := intel.PatternConfidence[tag]; ok {
			confidence[tag] = existing
		} else {
			confidence[tag] = defaultTagConfidence
		}
	}
	intel.Patterns = tags
	intel.PatternConfidence = confidence
}

// applyLazyDecay ages the in-memory copy from the persisted decay
// anchor. Spans already decayed by a sibling write are excluded, so the
// total decay a reader sees is always 0.95^(days since last visit).
func (s *Service) applyLazyDecay(intel *Intelligence) {
	days := s.now().UTC().Sub(intel.DecayAnchor()).Hours() / 24
	if days <= 0 {
		return
	}
	factor := math.Pow(s.cfg.DailyDecay, days)
	intel.Confidence *= factor
	intel.Quality *= factor
}

// qualityScore blends data volume, recency and inverse volatility.
func qualityScore(dataPoints int, now, lastVisit time.Time, volatility float64) float64 {
	dataScore := math.Min(float64(dataPoints)/50.0, 1.0)

	daysOld := now.Sub(lastVisit).Hours() / 24
	recencyScore := math.Max(0, 1-daysOld/qualityRecencyHorizon)

	volatilityScore := math.Max(0, 1-volatility/qualityVolatilityScale)

	quality := dataScore*qualityDataWeight + recencyScore*qualityRecencyWeight + volatilityScore*qualityVolatilityWeight
	return math.Min(quality, qualityCap)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
