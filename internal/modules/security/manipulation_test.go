package security

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

type errFeed struct{}

func (errFeed) RecentTransactions(_ context.Context, _ domain.Commodity, _ time.Duration) ([]domain.AnonymizedTransaction, error) {
	return nil, assert.AnError
}

func calmMarket(n int) []domain.AnonymizedTransaction {
	txs := make([]domain.AnonymizedTransaction, n)
	for i := range txs {
		txs[i] = domain.AnonymizedTransaction{
			ActorToken: string(rune('a' + i%26)),
			Price:      100 + float64(i%3),
			Quantity:   10,
		}
	}
	return txs
}

func TestDetector_FeedFailureIsQuiet(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	detector := NewManipulationDetector(errFeed{}, log)

	report := detector.Inspect(context.Background(), domain.CommodityOre)
	assert.Zero(t, report.Score)
	assert.Zero(t, report.Transactions)
}

func TestDetector_CalmMarket(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	feed := &stubFeed{txs: calmMarket(10)}
	detector := NewManipulationDetector(feed, log)

	report := detector.Inspect(context.Background(), domain.CommodityOre)
	assert.Zero(t, report.Score)
	assert.False(t, report.VolumeSpike)
	assert.False(t, report.PriceSwing)
	assert.False(t, report.Concentration)
	assert.Equal(t, 10, report.Transactions)
}

func TestDetector_VolumeSpikeAgainstBaseline(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	feed := &stubFeed{txs: calmMarket(4)}
	detector := NewManipulationDetector(feed, log)
	ctx := context.Background()

	// Establish the baseline with a quiet window.
	first := detector.Inspect(ctx, domain.CommodityOre)
	assert.False(t, first.VolumeSpike)

	feed.txs = calmMarket(20)
	second := detector.Inspect(ctx, domain.CommodityOre)
	assert.True(t, second.VolumeSpike)
	assert.InDelta(t, 0.4, second.Score, 1e-9)
}

func TestDetector_PriceSwing(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	feed := &stubFeed{txs: []domain.AnonymizedTransaction{
		{ActorToken: "a", Price: 10},
		{ActorToken: "b", Price: 12},
		{ActorToken: "c", Price: 16},
	}}
	detector := NewManipulationDetector(feed, log)

	report := detector.Inspect(context.Background(), domain.CommodityOre)
	assert.True(t, report.PriceSwing)
	assert.InDelta(t, 0.3, report.Score, 1e-9)
}

func TestDetector_SingleActorConcentration(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	feed := &stubFeed{txs: []domain.AnonymizedTransaction{
		{ActorToken: "whale", Price: 100},
		{ActorToken: "whale", Price: 101},
		{ActorToken: "whale", Price: 100},
		{ActorToken: "minnow", Price: 102},
	}}
	detector := NewManipulationDetector(feed, log)

	report := detector.Inspect(context.Background(), domain.CommodityOre)
	assert.True(t, report.Concentration)
	assert.False(t, report.PriceSwing)
	assert.InDelta(t, 0.3, report.Score, 1e-9)
}

func TestDetector_BaselinesArePerCommodity(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	feed := &stubFeed{txs: calmMarket(4)}
	detector := NewManipulationDetector(feed, log)
	ctx := context.Background()

	detector.Inspect(ctx, domain.CommodityOre)

	// FUEL has no baseline yet, so the same burst cannot spike it.
	feed.txs = calmMarket(20)
	report := detector.Inspect(ctx, domain.CommodityFuel)
	assert.False(t, report.VolumeSpike)
}
