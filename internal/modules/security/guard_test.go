package security

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
)

type fakeVerifier struct {
	denyShips map[string]bool
	denyPorts map[string]bool
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{denyShips: map[string]bool{}, denyPorts: map[string]bool{}}
}

func (v *fakeVerifier) ControlsShip(_ context.Context, playerID, shipID string) (bool, error) {
	return !v.denyShips[playerID+"|"+shipID], nil
}

func (v *fakeVerifier) ShipDockedAt(_ context.Context, playerID, portID string) (bool, error) {
	return !v.denyPorts[playerID+"|"+portID], nil
}

func (v *fakeVerifier) ShipInSector(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

type stubFeed struct {
	txs []domain.AnonymizedTransaction
}

func (f *stubFeed) RecentTransactions(_ context.Context, _ domain.Commodity, _ time.Duration) ([]domain.AnonymizedTransaction, error) {
	return f.txs, nil
}

func newAuditDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE security_events (
		id            TEXT PRIMARY KEY,
		player_id     TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		severity      TEXT NOT NULL,
		anomaly_score REAL NOT NULL DEFAULT 0,
		context       TEXT NOT NULL DEFAULT '{}',
		flagged       INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	)`)
	require.NoError(t, err)
	return db
}

type guardFixture struct {
	guard    *Guard
	verifier *fakeVerifier
	feed     *stubFeed
	bus      *events.Bus
	auditDB  *sql.DB
}

func newGuardFixture(t *testing.T, queriesPerMinute int) *guardFixture {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	auditDB := newAuditDB(t)
	repo := NewAuditRepository(auditDB, log)
	verifier := newFakeVerifier()
	feed := &stubFeed{}
	bus := events.NewBus()

	guard := NewGuard(
		verifier,
		repo,
		NewAnomalyScorer(repo),
		NewRateLimiter(queriesPerMinute, time.Minute),
		NewManipulationDetector(feed, log),
		repo,
		bus,
		0.8,
		log,
	)
	return &guardFixture{guard: guard, verifier: verifier, feed: feed, bus: bus, auditDB: auditDB}
}

func (f *guardFixture) eventCount(t *testing.T, playerID, eventType, severity string) int {
	t.Helper()
	var count int
	err := f.auditDB.QueryRow(
		`SELECT COUNT(*) FROM security_events WHERE player_id = ? AND event_type = ? AND severity = ?`,
		playerID, eventType, severity,
	).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestGuard_RequireShipControlDenied(t *testing.T) {
	f := newGuardFixture(t, 60)
	ctx := context.Background()
	f.verifier.denyShips["p1|stolen"] = true

	err := f.guard.RequireShipControl(ctx, "p1", "stolen", "s1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, f.eventCount(t, "p1", EventUnauthorizedVisit, "critical"))

	require.NoError(t, f.guard.RequireShipControl(ctx, "p1", "own-ship", "s1"))
	assert.Equal(t, 1, f.eventCount(t, "p1", EventUnauthorizedVisit, "critical"))
}

func TestGuard_RequireDockedAtDenied(t *testing.T) {
	f := newGuardFixture(t, 60)
	f.verifier.denyPorts["p1|port-1"] = true

	err := f.guard.RequireDockedAt(context.Background(), "p1", "port-1", domain.CommodityOre)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, f.eventCount(t, "p1", EventInvalidObservation, "critical"))
}

func TestGuard_AllowQueryRateLimit(t *testing.T) {
	f := newGuardFixture(t, 2)
	ctx := context.Background()

	require.NoError(t, f.guard.AllowQuery(ctx, "p1"))
	require.NoError(t, f.guard.AllowQuery(ctx, "p1"))

	err := f.guard.AllowQuery(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 1, f.eventCount(t, "p1", EventRateLimited, "warning"))

	// Another player is unaffected.
	require.NoError(t, f.guard.AllowQuery(ctx, "p2"))
}

func TestGuard_CheckManipulationFlagsAndPublishes(t *testing.T) {
	f := newGuardFixture(t, 60)
	ctx := context.Background()

	var flagged, detected int
	f.bus.Subscribe(events.SecurityEventFlagged, func(*events.Event) { flagged++ })
	f.bus.Subscribe(events.ManipulationDetected, func(*events.Event) { detected++ })

	// Quiet market: nothing trips.
	f.feed.txs = []domain.AnonymizedTransaction{
		{ActorToken: "a", Price: 100}, {ActorToken: "b", Price: 101}, {ActorToken: "c", Price: 102},
	}
	f.guard.CheckManipulation(ctx, "p1", domain.CommodityOre)
	assert.Equal(t, 0, f.eventCount(t, "p1", EventManipulationDetected, "warning"))

	// Wild swing and one actor behind most trades.
	f.feed.txs = []domain.AnonymizedTransaction{
		{ActorToken: "x", Price: 10}, {ActorToken: "x", Price: 14},
		{ActorToken: "x", Price: 20}, {ActorToken: "y", Price: 12},
	}
	f.guard.CheckManipulation(ctx, "p1", domain.CommodityOre)

	assert.Equal(t, 1, f.eventCount(t, "p1", EventManipulationDetected, "warning"))
	assert.Equal(t, 1, detected)
	// Manipulation events score 0.9, above the 0.8 threshold.
	assert.Equal(t, 1, flagged)
}

func TestGuard_StatusTrustScore(t *testing.T) {
	f := newGuardFixture(t, 60)
	ctx := context.Background()

	f.guard.LogEvent(ctx, "p1", EventUnauthorizedVisit, domain.SeverityCritical, nil)
	f.guard.LogEvent(ctx, "p1", EventRateLimited, domain.SeverityWarning, nil)
	f.guard.LogEvent(ctx, "p1", EventRateLimited, domain.SeverityWarning, nil)

	status, err := f.guard.Status(ctx, "p1")
	require.NoError(t, err)

	// 1.0 - 0.2 (critical) - 2*0.05 (warnings).
	assert.InDelta(t, 0.7, status.TrustScore, 1e-9)
	assert.Equal(t, 1, status.EventCounts[domain.SeverityCritical])
	assert.Equal(t, 2, status.EventCounts[domain.SeverityWarning])
	assert.Len(t, status.RecentEvents, 3)

	// A clean player starts at full trust.
	clean, err := f.guard.Status(ctx, "p2")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, clean.TrustScore, 1e-9)
}

func TestGuard_TrustScoreFloor(t *testing.T) {
	f := newGuardFixture(t, 60)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		f.guard.LogEvent(ctx, "p1", EventUnauthorizedVisit, domain.SeverityCritical, nil)
	}

	status, err := f.guard.Status(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, status.TrustScore)
}
