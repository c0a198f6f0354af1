package cascade

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/modules/exploration"
	"github.com/interstitch/sectorwars-intel/internal/modules/intelligence"
)

type fakeLedger struct {
	sectors map[string][]string // playerID -> explored sector IDs
}

func (f *fakeLedger) ExploredSectors(_ context.Context, playerID string) ([]exploration.Record, error) {
	now := time.Now()
	var records []exploration.Record
	for _, id := range f.sectors[playerID] {
		records = append(records, exploration.Record{
			PlayerID: playerID, SectorID: id,
			FirstVisit: now, LastVisit: now, VisitCount: 1,
		})
	}
	return records, nil
}

type fakeStore struct {
	intels []intelligence.Intelligence
}

func (f *fakeStore) ListByPlayer(_ context.Context, playerID string) ([]intelligence.Intelligence, error) {
	var out []intelligence.Intelligence
	for _, i := range f.intels {
		if i.PlayerID == playerID {
			out = append(out, i)
		}
	}
	return out, nil
}

type fakeTopo struct {
	edges map[string][]string
}

func (f *fakeTopo) Neighbors(_ context.Context, sectorID string) ([]string, error) {
	return f.edges[sectorID], nil
}

func (f *fakeTopo) PortSector(_ context.Context, _ string) (string, error) { return "", nil }

func intel(playerID, sectorID, portID string, commodity domain.Commodity, price, confidence float64) intelligence.Intelligence {
	return intelligence.Intelligence{
		PlayerID: playerID, SectorID: sectorID, PortID: portID,
		Commodity: string(commodity), AveragePrice: price,
		Confidence: confidence, DataPoints: 12,
	}
}

// chainTopo is s1 - s2 - s3 in a line.
func chainTopo() *fakeTopo {
	return &fakeTopo{edges: map[string][]string{
		"s1": {"s2"},
		"s2": {"s1", "s3"},
		"s3": {"s2"},
	}}
}

type recordingGuard struct {
	events []string
}

func (g *recordingGuard) LogEvent(_ context.Context, _ string, eventType string, _ domain.Severity, _ map[string]string) {
	g.events = append(g.events, eventType)
}

func newTestPlanner(ledger *fakeLedger, store *fakeStore, topo *fakeTopo) *Planner {
	return NewPlanner(ledger, store, topo, &recordingGuard{}, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestPlanCascade_NoExploration(t *testing.T) {
	p := newTestPlanner(&fakeLedger{sectors: map[string][]string{}}, &fakeStore{}, chainTopo())

	_, err := p.PlanCascade(context.Background(), "p1", "s1", 100, 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientExploration)
}

func TestPlanCascade_StartSectorUnexplored(t *testing.T) {
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s2", "s3"}}}
	store := &fakeStore{intels: []intelligence.Intelligence{
		intel("p1", "s2", "port-2", domain.CommodityOre, 10, 0.8),
	}}
	p := newTestPlanner(ledger, store, chainTopo())

	_, err := p.PlanCascade(context.Background(), "p1", "s1", 100, 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientExploration)
}

func TestPlanCascade_NoIntelligence(t *testing.T) {
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s1", "s2"}}}
	p := newTestPlanner(ledger, &fakeStore{}, chainTopo())

	_, err := p.PlanCascade(context.Background(), "p1", "s1", 100, 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientExploration)
}

func TestPlanCascade_FindsBuySellSpread(t *testing.T) {
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s1", "s2", "s3"}}}
	store := &fakeStore{intels: []intelligence.Intelligence{
		intel("p1", "s1", "port-1", domain.CommodityOre, 10, 0.9),
		intel("p1", "s3", "port-3", domain.CommodityOre, 25, 0.6),
	}}
	p := newTestPlanner(ledger, store, chainTopo())

	plan, err := p.PlanCascade(context.Background(), "p1", "s1", 1000, 3)
	require.NoError(t, err)

	assert.EqualValues(t, 1500, plan.TotalProfit, "(25-10) x lot of 100")
	assert.Equal(t, 2, plan.TotalJumps)
	assert.EqualValues(t, 750, plan.ProfitPerJump)
	assert.Equal(t, 0.6, plan.Confidence, "plan confidence is the weakest leg")
	assert.NotEmpty(t, plan.ID)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, domain.ActionBuy, plan.Steps[0].Action)
	assert.Equal(t, "port-1", plan.Steps[0].PortID)
	assert.Equal(t, 10.0, plan.Steps[0].ExpectedPrice)
	assert.Equal(t, domain.ActionSell, plan.Steps[1].Action)
	assert.Equal(t, "port-3", plan.Steps[1].PortID)
	assert.Equal(t, "12 observations", plan.Steps[1].BasedOn)
}

func TestPlanCascade_NeverRoutesThroughUnexploredSpace(t *testing.T) {
	// s3 holds a lucrative sell market, but the only path there runs
	// through s2, which the player has not explored.
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s1", "s3"}}}
	store := &fakeStore{intels: []intelligence.Intelligence{
		intel("p1", "s1", "port-1", domain.CommodityOre, 10, 0.9),
		intel("p1", "s3", "port-3", domain.CommodityOre, 90, 0.9),
	}}
	p := newTestPlanner(ledger, store, chainTopo())

	_, err := p.PlanCascade(context.Background(), "p1", "s1", 100, 5)
	assert.ErrorIs(t, err, domain.ErrNoProfitableRoute)
}

func TestPlanCascade_TargetProfitNotMet(t *testing.T) {
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s1", "s2"}}}
	store := &fakeStore{intels: []intelligence.Intelligence{
		intel("p1", "s1", "port-1", domain.CommodityFuel, 10, 0.9),
		intel("p1", "s2", "port-2", domain.CommodityFuel, 12, 0.9),
	}}
	p := newTestPlanner(ledger, store, chainTopo())

	// Spread yields 200 credits; demand more.
	_, err := p.PlanCascade(context.Background(), "p1", "s1", 5000, 3)
	assert.ErrorIs(t, err, domain.ErrNoProfitableRoute)
}

func TestPlanCascade_PrefersProfitPerJump(t *testing.T) {
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s1", "s2", "s3"}}}
	store := &fakeStore{intels: []intelligence.Intelligence{
		// ORE: 500 profit over 1 jump.
		intel("p1", "s1", "port-1", domain.CommodityOre, 10, 0.9),
		intel("p1", "s2", "port-2", domain.CommodityOre, 15, 0.9),
		// FUEL: 800 profit over 2 jumps.
		intel("p1", "s1", "port-1", domain.CommodityFuel, 20, 0.9),
		intel("p1", "s3", "port-3", domain.CommodityFuel, 28, 0.9),
	}}
	p := newTestPlanner(ledger, store, chainTopo())

	plan, err := p.PlanCascade(context.Background(), "p1", "s1", 100, 3)
	require.NoError(t, err)

	assert.Equal(t, domain.CommodityOre, plan.Steps[0].Commodity, "500/jump beats 400/jump")
	assert.EqualValues(t, 500, plan.ProfitPerJump)
}

func TestPlanCascade_RespectsJumpBound(t *testing.T) {
	ledger := &fakeLedger{sectors: map[string][]string{"p1": {"s1", "s2", "s3"}}}
	store := &fakeStore{intels: []intelligence.Intelligence{
		intel("p1", "s1", "port-1", domain.CommodityOre, 10, 0.9),
		intel("p1", "s3", "port-3", domain.CommodityOre, 25, 0.9),
	}}
	p := newTestPlanner(ledger, store, chainTopo())

	_, err := p.PlanCascade(context.Background(), "p1", "s1", 100, 1)
	assert.ErrorIs(t, err, domain.ErrNoProfitableRoute, "s3 is two jumps out")
}

func TestPlanCascade_InvalidInput(t *testing.T) {
	guard := &recordingGuard{}
	p := NewPlanner(&fakeLedger{}, &fakeStore{}, chainTopo(), guard, zerolog.New(nil).Level(zerolog.Disabled))

	_, err := p.PlanCascade(context.Background(), "p1", "s1", -5, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.PlanCascade(context.Background(), "p1", "s1", 100, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, []string{"invalid_input", "invalid_input"}, guard.events,
		"both rejections must land in the audit trail")
}
