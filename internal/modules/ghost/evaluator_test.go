package ghost

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstitch/sectorwars-intel/internal/domain"
	"github.com/interstitch/sectorwars-intel/internal/modules/forecast"
)

type fakeStates struct {
	states []forecast.QuantumState
	err    error
	calls  int
}

func (f *fakeStates) GenerateStates(_ context.Context, _, _ string, _ domain.Commodity, _ int) ([]forecast.QuantumState, error) {
	f.calls++
	return f.states, f.err
}

func fourStates() []forecast.QuantumState {
	return []forecast.QuantumState{
		{ID: forecast.StateOptimistic, Probability: 0.25, Price: 60},
		{ID: forecast.StateAverage, Probability: 0.45, Price: 50},
		{ID: forecast.StatePessimistic, Probability: 0.25, Price: 40},
		{ID: forecast.StateUnknown, Probability: 0.05, Price: 25},
	}
}

type recordingGuard struct {
	events []string
}

func (g *recordingGuard) LogEvent(_ context.Context, _ string, eventType string, _ domain.Severity, _ map[string]string) {
	g.events = append(g.events, eventType)
}

func newTestEvaluator(t *testing.T, states *fakeStates) (*Evaluator, *recordingGuard) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	guard := &recordingGuard{}
	return NewEvaluator(states, NewCache(newCacheDB(t), 15*time.Minute, log), guard, log), guard
}

func TestEvaluate_ExpectedValue(t *testing.T) {
	states := &fakeStates{states: fourStates()}
	eval, _ := newTestEvaluator(t, states)

	result, err := eval.Evaluate(context.Background(), "p1", "port-1", domain.CommodityOre, domain.ActionSell, 100)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 4)

	// 0.25*6000 + 0.45*5000 + 0.25*4000 + 0.05*2500 = 4875
	assert.InDelta(t, 4875.0, result.ExpectedValue, 1e-9)
	assert.Equal(t, 6000.0, result.Outcomes[0].Total)
	assert.Equal(t, "Good selling opportunity", result.Recommendation)
	assert.False(t, result.Cached)
}

func TestEvaluate_RecommendationBands(t *testing.T) {
	cases := []struct {
		name     string
		action   domain.TradeAction
		price    float64
		quantity int
		want     string
	}{
		{"cheap buy", domain.ActionBuy, 5, 100, "Low cost opportunity"},
		{"moderate buy", domain.ActionBuy, 30, 100, "Moderate investment"},
		{"expensive buy", domain.ActionBuy, 80, 100, "High investment required"},
		{"small sell", domain.ActionSell, 5, 100, "Limited profit potential"},
		{"good sell", domain.ActionSell, 30, 100, "Good selling opportunity"},
		{"excellent sell", domain.ActionSell, 80, 100, "Excellent selling opportunity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			states := &fakeStates{states: []forecast.QuantumState{
				{ID: forecast.StateAverage, Probability: 1.0, Price: tc.price},
			}}
			eval, _ := newTestEvaluator(t, states)

			result, err := eval.Evaluate(context.Background(), "p1", "port-1", domain.CommodityOre, tc.action, tc.quantity)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Recommendation)
		})
	}
}

func TestEvaluate_CachesRepeatRequests(t *testing.T) {
	states := &fakeStates{states: fourStates()}
	eval, _ := newTestEvaluator(t, states)
	ctx := context.Background()

	first, err := eval.Evaluate(ctx, "p1", "port-1", domain.CommodityOre, domain.ActionSell, 100)
	require.NoError(t, err)

	second, err := eval.Evaluate(ctx, "p1", "port-1", domain.CommodityOre, domain.ActionSell, 100)
	require.NoError(t, err)

	assert.Equal(t, 1, states.calls, "repeat within the TTL must not recompute")
	assert.True(t, second.Cached)
	assert.Equal(t, first.ExpectedValue, second.ExpectedValue)

	// A different quantity is a different trade.
	_, err = eval.Evaluate(ctx, "p1", "port-1", domain.CommodityOre, domain.ActionSell, 200)
	require.NoError(t, err)
	assert.Equal(t, 2, states.calls)
}

func TestEvaluate_PreconditionFailuresNotCached(t *testing.T) {
	states := &fakeStates{err: domain.ErrInsufficientData}
	eval, _ := newTestEvaluator(t, states)
	ctx := context.Background()

	_, err := eval.Evaluate(ctx, "p1", "port-1", domain.CommodityOre, domain.ActionBuy, 50)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	// Once enough observations exist the same request must recompute
	// instead of replaying a cached failure.
	states.err = nil
	states.states = fourStates()
	result, err := eval.Evaluate(ctx, "p1", "port-1", domain.CommodityOre, domain.ActionBuy, 50)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, states.calls)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	eval, guard := newTestEvaluator(t, &fakeStates{})

	_, err := eval.Evaluate(context.Background(), "p1", "port-1", domain.CommodityOre, domain.TradeAction("short"), 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = eval.Evaluate(context.Background(), "p1", "port-1", domain.CommodityOre, domain.ActionBuy, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, []string{"invalid_input", "invalid_input"}, guard.events,
		"both rejections must land in the audit trail")
}
