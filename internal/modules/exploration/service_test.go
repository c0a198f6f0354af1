package exploration

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

type fakeGuard struct {
	denied map[string]bool
}

func (g *fakeGuard) RequireShipControl(_ context.Context, playerID, shipID, sectorID string) error {
	if g.denied[playerID+"|"+shipID] {
		return domain.ErrUnauthorized
	}
	return nil
}

func newLedgerDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE exploration_records (
		player_id   TEXT NOT NULL,
		sector_id   TEXT NOT NULL,
		first_visit TEXT NOT NULL,
		last_visit  TEXT NOT NULL,
		visit_count INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (player_id, sector_id)
	)`)
	require.NoError(t, err)
	return db
}

func newTestService(t *testing.T) (*Service, *fakeGuard) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	g := &fakeGuard{denied: map[string]bool{}}
	return NewService(NewRepository(newLedgerDB(t), log), g, log), g
}

func TestService_RecordVisitFirstTime(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.RecordVisit(ctx, "p1", "ship-1", "s1")
	require.NoError(t, err)

	assert.Equal(t, "p1", record.PlayerID)
	assert.Equal(t, "s1", record.SectorID)
	assert.Equal(t, 1, record.VisitCount)
	assert.Equal(t, record.FirstVisit, record.LastVisit)
}

func TestService_RecordVisitIncrementsCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.RecordVisit(ctx, "p1", "ship-1", "s1")
	require.NoError(t, err)
	_, err = svc.RecordVisit(ctx, "p1", "ship-1", "s1")
	require.NoError(t, err)
	third, err := svc.RecordVisit(ctx, "p1", "ship-1", "s1")
	require.NoError(t, err)

	assert.Equal(t, 3, third.VisitCount)
	assert.Equal(t, first.FirstVisit, third.FirstVisit)
	assert.False(t, third.LastVisit.Before(first.LastVisit))
}

func TestService_RecordVisitUnauthorized(t *testing.T) {
	svc, g := newTestService(t)
	ctx := context.Background()
	g.denied["p1|stolen-ship"] = true

	record, err := svc.RecordVisit(ctx, "p1", "stolen-ship", "s1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Nil(t, record)

	// The denied attempt must leave no trace in the ledger.
	count, err := svc.HasVisited(ctx, "p1", "s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_HasVisitedUnexplored(t *testing.T) {
	svc, _ := newTestService(t)

	count, err := svc.HasVisited(context.Background(), "p1", "nowhere")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_ExploredSectorsScopedToPlayer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordVisit(ctx, "p1", "ship-1", "s1")
	require.NoError(t, err)
	_, err = svc.RecordVisit(ctx, "p1", "ship-1", "s2")
	require.NoError(t, err)
	_, err = svc.RecordVisit(ctx, "p2", "ship-2", "s3")
	require.NoError(t, err)

	records, err := svc.ExploredSectors(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	sectors := []string{records[0].SectorID, records[1].SectorID}
	assert.ElementsMatch(t, []string{"s1", "s2"}, sectors)
}
