package evolution

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/events"
	"github.com/interstitch/sectorwars-intel/internal/locks"
)

func newIntelDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE trading_patterns (
			player_id      TEXT NOT NULL,
			fingerprint    TEXT NOT NULL,
			pattern_type   TEXT NOT NULL,
			genes          TEXT NOT NULL,
			generation     INTEGER NOT NULL DEFAULT 1,
			parent         TEXT,
			mutations      TEXT NOT NULL DEFAULT '[]',
			times_used     INTEGER NOT NULL DEFAULT 0,
			success_rate   REAL NOT NULL DEFAULT 0,
			average_profit REAL NOT NULL DEFAULT 0,
			best_profit    REAL NOT NULL DEFAULT 0,
			worst_loss     REAL NOT NULL DEFAULT 0,
			fitness        REAL NOT NULL DEFAULT 0.5,
			active         INTEGER NOT NULL DEFAULT 1,
			discovered_at  TEXT NOT NULL,
			last_used      TEXT,
			evolved_at     TEXT,
			PRIMARY KEY (player_id, fingerprint)
		)`)
	require.NoError(t, err)
	return db
}

type fakeProfiles struct {
	profile domain.TradingProfile
}

func (f *fakeProfiles) TradingProfile(_ context.Context, playerID string) (domain.TradingProfile, error) {
	p := f.profile
	p.PlayerID = playerID
	return p, nil
}

func defaultProfile() domain.TradingProfile {
	return domain.TradingProfile{
		RiskScore:           0.6,
		TradesPerDay:        4,
		AverageProfitMargin: 0.15,
		LargestLoss:         -500,
		TotalVolume:         10000,
	}
}

type recordingGuard struct {
	events []string
}

func (g *recordingGuard) LogEvent(_ context.Context, _ string, eventType string, _ domain.Severity, _ map[string]string) {
	g.events = append(g.events, eventType)
}

func newTestService(t *testing.T) (*Service, *recordingGuard) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	guard := &recordingGuard{}
	svc := NewService(
		NewRepository(newIntelDB(t), log),
		&fakeProfiles{profile: defaultProfile()},
		guard,
		events.NewBus(),
		locks.NewKeyedMutex(),
		log,
	)
	svc.randFn = func() float64 { return 0.1 } // deterministic evolution
	return svc, guard
}

func oreTrade(profit float64) domain.TradeResult {
	return domain.TradeResult{
		Commodity:  domain.CommodityOre,
		Action:     domain.ActionSell,
		Quantity:   100,
		Profit:     profit,
		ExecutedAt: time.Now(),
	}
}

func TestRecordTradeOutcome_CreatesPatternFromProfile(t *testing.T) {
	svc, _ := newTestService(t)

	pattern, err := svc.RecordTradeOutcome(context.Background(), "p1", oreTrade(200))
	require.NoError(t, err)

	assert.NotEmpty(t, pattern.Fingerprint)
	assert.Equal(t, TypeBulkTrading, pattern.Type, "ORE is a bulk commodity")
	assert.Equal(t, 1, pattern.Generation)
	assert.Equal(t, 1, pattern.TimesUsed)
	assert.Equal(t, 1.0, pattern.SuccessRate)
	assert.Equal(t, 200.0, pattern.AverageProfit)
	assert.Equal(t, 0.6, pattern.Genes.RiskAppetite)
	assert.Equal(t, TimingConservative, pattern.Genes.TimingPreference)
	assert.True(t, pattern.Active)
}

func TestRecordTradeOutcome_SameTradeSamePattern(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.RecordTradeOutcome(ctx, "p1", oreTrade(100))
	require.NoError(t, err)
	second, err := svc.RecordTradeOutcome(ctx, "p1", oreTrade(300))
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 2, second.TimesUsed)
	assert.Equal(t, 200.0, second.AverageProfit)
}

func TestRecordTradeOutcome_UnknownFingerprint(t *testing.T) {
	svc, guard := newTestService(t)

	trade := oreTrade(100)
	trade.Fingerprint = "0000-dead-beef-0000-0000-0000"
	_, err := svc.RecordTradeOutcome(context.Background(), "p1", trade)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, []string{"invalid_input"}, guard.events)
}

func TestRecordTradeOutcome_InvalidInput(t *testing.T) {
	svc, guard := newTestService(t)
	ctx := context.Background()

	bad := oreTrade(100)
	bad.Commodity = "PLUTONIUM"
	_, err := svc.RecordTradeOutcome(ctx, "p1", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad = oreTrade(100)
	bad.Quantity = 0
	_, err = svc.RecordTradeOutcome(ctx, "p1", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, []string{"invalid_input", "invalid_input"}, guard.events,
		"both rejections must land in the audit trail")
}

func TestEvolution_SuccessfulPatternBreedsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var parent *TradingPattern
	var err error
	for i := 0; i < 12; i++ {
		parent, err = svc.RecordTradeOutcome(ctx, "p1", oreTrade(1000))
		require.NoError(t, err)
	}

	assert.Greater(t, parent.Fitness, 0.7)

	patterns, err := svc.TopPatterns(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, patterns, 2, "exactly one offspring despite repeated high fitness")

	var offspring *TradingPattern
	for i := range patterns {
		if patterns[i].Parent != "" {
			offspring = &patterns[i]
		}
	}
	require.NotNil(t, offspring)
	assert.Equal(t, parent.Fingerprint, offspring.Parent)
	assert.Equal(t, parent.Generation+1, offspring.Generation)
	assert.Equal(t, parent.Type, offspring.Type)
}

func TestEvolution_FailingPatternMutatesNotDeleted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var pattern *TradingPattern
	var err error
	for i := 0; i < 10; i++ {
		pattern, err = svc.RecordTradeOutcome(ctx, "p1", oreTrade(-100))
		require.NoError(t, err)
	}

	assert.Less(t, pattern.Fitness, 0.3)
	assert.Equal(t, 2, pattern.Generation, "mutation bumps the generation")
	assert.NotEmpty(t, pattern.Mutations)
	assert.True(t, pattern.Active, "failing patterns mutate, they are never removed")
	assert.Equal(t, -100.0, pattern.WorstLoss)

	patterns, err := svc.TopPatterns(ctx, "p1", "")
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestTopPatterns_FilterAndOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordTradeOutcome(ctx, "p1", oreTrade(900))
	require.NoError(t, err)

	luxury := oreTrade(50)
	luxury.Commodity = domain.CommodityLuxury
	_, err = svc.RecordTradeOutcome(ctx, "p1", luxury)
	require.NoError(t, err)

	all, err := svc.TopPatterns(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.GreaterOrEqual(t, all[0].Fitness, all[1].Fitness, "sorted by fitness")

	bulk, err := svc.TopPatterns(ctx, "p1", TypeBulkTrading)
	require.NoError(t, err)
	require.Len(t, bulk, 1)
	assert.Equal(t, domain.CommodityOre, bulk[0].Genes.PreferredCommodity)

	_, err = svc.TopPatterns(ctx, "p1", "speculative")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPatterns_IsolatedPerPlayer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordTradeOutcome(ctx, "p1", oreTrade(500))
	require.NoError(t, err)

	other, err := svc.TopPatterns(ctx, "p2", "")
	require.NoError(t, err)
	assert.Empty(t, other, "one player's patterns are invisible to another")
}
