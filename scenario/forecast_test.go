package scenario_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

func TestSplitCost(t *testing.T) {
	tests := []struct {
		ratio    int
		run, chg string
	}{
		{0, "1000", "0"},
		{100, "0", "1000"},
		{30, "700", "300"},
		{33, "670", "330"},
	}
	for _, tt := range tests {
		run, change := scenario.SplitCost(decimal.NewFromInt(1000), tt.ratio)
		assert.Equal(t, tt.run, run.String(), "ratio %d", tt.ratio)
		assert.Equal(t, tt.chg, change.String(), "ratio %d", tt.ratio)
	}
}

func TestForecast(t *testing.T) {
	// GIVEN: Two FR resources over all of 2025 (257 days each)
	// and one envelope per category
	a := person("A", presence.CountryFR)
	a.Rate = decimal.NewFromInt(100)
	a.ChangeRatio = 0
	b := person("B", presence.CountryFR)
	b.Rate = decimal.NewFromInt(200)
	b.ChangeRatio = 50
	s := &scenario.Scenario{
		ID: "s1",
		Envelopes: []scenario.Envelope{
			{Name: "run", Type: scenario.EnvelopeRun, Amount: decimal.NewFromInt(60000)},
			{Name: "run 2", Type: scenario.EnvelopeRun, Amount: decimal.NewFromInt(10000)},
			{Name: "change", Type: scenario.EnvelopeChange, Amount: decimal.NewFromInt(20000)},
		},
	}

	// WHEN: Forecasting 2025
	sum, err := scenario.Forecast(context.Background(), presence.NewStatsCache(), s, []*presence.Resource{a, b}, 2025)
	require.NoError(t, err)

	// THEN: A is all RUN (25700), B is half/half (25700 each)
	require.Len(t, sum.Resources, 2)
	assert.Equal(t, "25700", sum.Resources[0].Run.String())
	assert.Equal(t, "0", sum.Resources[0].Change.String())
	assert.Equal(t, "51400", sum.Resources[1].Cost.String())

	assert.Equal(t, "70000", sum.Run.Envelope.String())
	assert.Equal(t, "51400", sum.Run.Forecast.String())
	assert.Equal(t, "18600", sum.Run.Remaining.String())

	assert.Equal(t, "20000", sum.Change.Envelope.String())
	assert.Equal(t, "25700", sum.Change.Forecast.String())
	assert.Equal(t, "-5700", sum.Change.Remaining.String())

	assert.Equal(t, "77100", sum.Total.Forecast.String())
	assert.Equal(t, "12900", sum.Total.Remaining.String())
}

func TestForecast_Empty(t *testing.T) {
	sum, err := scenario.Forecast(context.Background(), presence.NewStatsCache(), &scenario.Scenario{ID: "s"}, nil, 2025)
	require.NoError(t, err)

	assert.Empty(t, sum.Resources)
	assert.True(t, sum.Total.Remaining.IsZero())
}

func TestForecast_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := scenario.Forecast(ctx, presence.NewStatsCache(), &scenario.Scenario{}, []*presence.Resource{person("A", presence.CountryFR)}, 2025)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestManagerBudget(t *testing.T) {
	ctx := context.Background()
	m, _ := setup(t)
	d := initProject(t, m, 2)

	sum, err := m.Budget(ctx, d.ID, 2025)
	require.NoError(t, err)

	// 2 x 257 days x 400
	assert.Equal(t, "205600", sum.Total.Forecast.String())
	assert.Equal(t, "100000", sum.Run.Envelope.String())
}
