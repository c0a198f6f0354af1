package security

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Manipulation heuristics. Computed from the global anonymized feed only;
// the detector raises flags and never blocks a player's request.
const (
	manipulationWindow    = time.Hour
	volumeSpikeFactor     = 5.0  // volume >= 5x baseline
	priceSwingThreshold   = 0.5  // >= 50% move inside the window
	concentrationFraction = 0.5  // one actor behind >= 50% of trades
	manipulationFlagScore = 0.5  // report scores above this are logged
)

// ManipulationDetector scores market-manipulation indicators per commodity.
type ManipulationDetector struct {
	feed domain.TransactionFeed
	log  zerolog.Logger

	mu       sync.Mutex
	baseline map[domain.Commodity]float64 // rolling mean transactions per window
}

// NewManipulationDetector creates a detector over the anonymized feed.
func NewManipulationDetector(feed domain.TransactionFeed, log zerolog.Logger) *ManipulationDetector {
	return &ManipulationDetector{
		feed:     feed,
		baseline: make(map[domain.Commodity]float64),
		log:      log.With().Str("component", "manipulation_detector").Logger(),
	}
}

// Inspect analyzes the last hour of anonymized transactions for the
// commodity. Feed failures return a zero report, never an error: a broken
// feed must not break trading requests.
func (d *ManipulationDetector) Inspect(ctx context.Context, commodity domain.Commodity) ManipulationReport {
	report := ManipulationReport{
		Commodity:      commodity,
		WindowDuration: manipulationWindow,
	}

	if d.feed == nil {
		return report
	}

	txs, err := d.feed.RecentTransactions(ctx, commodity, manipulationWindow)
	if err != nil {
		d.log.Warn().Err(err).Str("commodity", string(commodity)).Msg("Transaction feed unavailable, skipping manipulation check")
		return report
	}
	report.Transactions = len(txs)
	if len(txs) == 0 {
		d.updateBaseline(commodity, 0)
		return report
	}

	// Volume spike against the rolling baseline.
	if baseline := d.currentBaseline(commodity); baseline > 0 && float64(len(txs)) >= baseline*volumeSpikeFactor {
		report.VolumeSpike = true
		report.Score += 0.4
	}
	d.updateBaseline(commodity, float64(len(txs)))

	// Price swing across the window.
	low, high := txs[0].Price, txs[0].Price
	for _, tx := range txs {
		low = math.Min(low, tx.Price)
		high = math.Max(high, tx.Price)
	}
	if low > 0 && (high-low)/low >= priceSwingThreshold {
		report.PriceSwing = true
		report.Score += 0.3
	}

	// Single-actor concentration via opaque actor tokens.
	perActor := make(map[string]int)
	maxTrades := 0
	for _, tx := range txs {
		perActor[tx.ActorToken]++
		if perActor[tx.ActorToken] > maxTrades {
			maxTrades = perActor[tx.ActorToken]
		}
	}
	if float64(maxTrades)/float64(len(txs)) >= concentrationFraction {
		report.Concentration = true
		report.Score += 0.3
	}

	if report.Score > 1.0 {
		report.Score = 1.0
	}
	return report
}

func (d *ManipulationDetector) currentBaseline(commodity domain.Commodity) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline[commodity]
}

// updateBaseline folds the latest observation into an exponential moving
// average so a sustained spike eventually becomes the new normal.
func (d *ManipulationDetector) updateBaseline(commodity domain.Commodity, observed float64) {
	const alpha = 0.2
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.baseline[commodity]
	if !ok {
		d.baseline[commodity] = observed
		return
	}
	d.baseline[commodity] = current*(1-alpha) + observed*alpha
}
