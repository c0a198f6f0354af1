package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/modules/exploration"
	"github.com/interstitch/sectorwars-intel/internal/modules/intelligence"
)

// cargoLot is the notional cargo size routes are costed against.
const cargoLot = 100

// explorationLedger is the slice of the exploration module the planner needs.
type explorationLedger interface {
	ExploredSectors(ctx context.Context, playerID string) ([]exploration.Record, error)
}

// intelligenceStore is the slice of the intelligence module the planner needs.
type intelligenceStore interface {
	ListByPlayer(ctx context.Context, playerID string) ([]intelligence.Intelligence, error)
}

// guard is the slice of the security guard the planner needs.
type guard interface {
	LogEvent(ctx context.Context, playerID, eventType string, severity domain.Severity, eventContext map[string]string)
}

// market is one known (port, commodity) price point inside the graph.
type market struct {
	sectorID     string
	portID       string
	commodity    domain.Commodity
	price        float64
	confidence   float64
	observations int
}

// route is one candidate buy-jump-sell sequence.
type route struct {
	buy    market
	sell   market
	jumps  int
	profit float64
}

func (r route) profitPerJump() float64 {
	if r.jumps == 0 {
		return r.profit
	}
	return r.profit / float64(r.jumps)
}

// Planner searches a player's personal trade graph for cascades.
type Planner struct {
	ledger explorationLedger
	store  intelligenceStore
	topo   domain.MapTopology
	guard  guard
	log    zerolog.Logger
}

// NewPlanner creates a cascade planner.
func NewPlanner(ledger explorationLedger, store intelligenceStore, topo domain.MapTopology, g guard, log zerolog.Logger) *Planner {
	return &Planner{
		ledger: ledger,
		store:  store,
		topo:   topo,
		guard:  g,
		log:    log.With().Str("module", "cascade").Logger(),
	}
}

// PlanCascade finds the route with the best profit per jump that clears
// targetProfit within maxJumps, using only sectors the player has
// explored and prices the player has personally observed. It fails with
// ErrInsufficientExploration when the player's map cannot support a
// search, and ErrNoProfitableRoute when the search comes up empty.
func (p *Planner) PlanCascade(ctx context.Context, playerID, startSectorID string, targetProfit float64, maxJumps int) (*Plan, error) {
	if maxJumps <= 0 || targetProfit < 0 {
		p.guard.LogEvent(ctx, playerID, "invalid_input", domain.SeverityWarning, map[string]string{
			"target_profit": fmt.Sprintf("%.2f", targetProfit),
			"max_jumps":     fmt.Sprintf("%d", maxJumps),
		})
		return nil, fmt.Errorf("%w: target profit must be >= 0 and max jumps positive", domain.ErrInvalidInput)
	}

	records, err := p.ledger.ExploredSectors(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrInsufficientExploration
	}

	explored := make(map[string]bool, len(records))
	for _, r := range records {
		explored[r.SectorID] = true
	}
	if !explored[startSectorID] {
		return nil, fmt.Errorf("%w: start sector not explored", domain.ErrInsufficientExploration)
	}

	markets, err := p.knownMarkets(ctx, playerID, explored)
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("%w: no market intelligence in explored territory", domain.ErrInsufficientExploration)
	}

	// Hop distances inside the explored subgraph, from the start and
	// from every sector holding a market.
	distances := map[string]map[string]int{}
	origins := map[string]bool{startSectorID: true}
	for _, m := range markets {
		origins[m.sectorID] = true
	}
	for origin := range origins {
		d, err := p.hopDistances(ctx, origin, explored, maxJumps)
		if err != nil {
			return nil, err
		}
		distances[origin] = d
	}

	best, err := p.searchRoutes(ctx, markets, distances, startSectorID, targetProfit, maxJumps)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, domain.ErrNoProfitableRoute
	}

	plan := p.buildPlan(playerID, *best)
	p.log.Info().
		Str("player_id", playerID).
		Float64("total_profit", plan.TotalProfit).
		Int("total_jumps", plan.TotalJumps).
		Msg("Cascade planned")
	return plan, nil
}

// knownMarkets collects the player's price points inside explored space.
// A route may only buy and sell at prices the player has seen personally.
func (p *Planner) knownMarkets(ctx context.Context, playerID string, explored map[string]bool) ([]market, error) {
	intels, err := p.store.ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	markets := make([]market, 0, len(intels))
	for _, intel := range intels {
		if !explored[intel.SectorID] || intel.DataPoints == 0 {
			continue
		}
		markets = append(markets, market{
			sectorID:     intel.SectorID,
			portID:       intel.PortID,
			commodity:    domain.Commodity(intel.Commodity),
			price:        intel.AveragePrice,
			confidence:   intel.Confidence,
			observations: intel.DataPoints,
		})
	}
	return markets, nil
}

// hopDistances runs a bounded breadth-first search from origin, walking
// only explored sectors.
func (p *Planner) hopDistances(ctx context.Context, origin string, explored map[string]bool, maxHops int) (map[string]int, error) {
	dist := map[string]int{origin: 0}
	frontier := []string{origin}

	for hops := 1; hops <= maxHops && len(frontier) > 0; hops++ {
		var next []string
		for _, sectorID := range frontier {
			neighbors, err := p.topo.Neighbors(ctx, sectorID)
			if err != nil {
				return nil, fmt.Errorf("%w: topology lookup failed: %v", domain.ErrTransientStore, err)
			}
			for _, n := range neighbors {
				if !explored[n] {
					continue
				}
				if _, seen := dist[n]; seen {
					continue
				}
				dist[n] = hops
				next = append(next, n)
			}
		}
		frontier = next
	}
	return dist, nil
}

// searchRoutes evaluates every commodity in parallel and returns the
// qualifying route with the highest profit per jump, or nil.
func (p *Planner) searchRoutes(ctx context.Context, markets []market, distances map[string]map[string]int, start string, targetProfit float64, maxJumps int) (*route, error) {
	byCommodity := map[domain.Commodity][]market{}
	for _, m := range markets {
		byCommodity[m.commodity] = append(byCommodity[m.commodity], m)
	}

	var (
		mu   sync.Mutex
		best *route
	)
	g, _ := errgroup.WithContext(ctx)
	for _, group := range byCommodity {
		group := group
		g.Go(func() error {
			candidate := bestRouteFor(group, distances, start, targetProfit, maxJumps)
			if candidate == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if best == nil || candidate.profitPerJump() > best.profitPerJump() {
				best = candidate
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return best, nil
}

// bestRouteFor pairs every buy market with every sell market of one
// commodity and keeps the best qualifying combination.
func bestRouteFor(markets []market, distances map[string]map[string]int, start string, targetProfit float64, maxJumps int) *route {
	var best *route
	for _, buy := range markets {
		toBuy, ok := distances[start][buy.sectorID]
		if !ok {
			continue
		}
		for _, sell := range markets {
			if buy.portID == sell.portID {
				continue
			}
			between, ok := distances[buy.sectorID][sell.sectorID]
			if !ok {
				continue
			}
			jumps := toBuy + between
			if jumps > maxJumps {
				continue
			}
			profit := (sell.price - buy.price) * cargoLot
			if profit < targetProfit || profit <= 0 {
				continue
			}
			candidate := &route{buy: buy, sell: sell, jumps: jumps, profit: profit}
			if best == nil || candidate.profitPerJump() > best.profitPerJump() {
				best = candidate
			}
		}
	}
	return best
}

func (p *Planner) buildPlan(playerID string, r route) *Plan {
	confidence := r.buy.confidence
	if r.sell.confidence < confidence {
		confidence = r.sell.confidence
	}
	return &Plan{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		TotalProfit:   r.profit,
		TotalJumps:    r.jumps,
		ProfitPerJump: r.profitPerJump(),
		Confidence:    confidence,
		PlannedAt:     time.Now().UTC(),
		Steps: []Step{
			{
				Number:        1,
				SectorID:      r.buy.sectorID,
				PortID:        r.buy.portID,
				Action:        domain.ActionBuy,
				Commodity:     r.buy.commodity,
				ExpectedPrice: r.buy.price,
				Confidence:    r.buy.confidence,
				BasedOn:       fmt.Sprintf("%d observations", r.buy.observations),
			},
			{
				Number:        2,
				SectorID:      r.sell.sectorID,
				PortID:        r.sell.portID,
				Action:        domain.ActionSell,
				Commodity:     r.sell.commodity,
				ExpectedPrice: r.sell.price,
				Confidence:    r.sell.confidence,
				BasedOn:       fmt.Sprintf("%d observations", r.sell.observations),
			},
		},
	}
}
