/*
forecast.go - Budget envelopes against resource cost

SPLIT:
  Each resource's yearly cost is split by its change ratio:
    CHANGE = cost * ratio / 100
    RUN    = cost - CHANGE      (= cost * (100 - ratio) / 100)
  Computing RUN as the remainder keeps RUN + CHANGE exactly equal to cost.

ENVELOPES:
  Envelope amounts are summed by type. Remaining = envelope - forecast and
  goes negative when the plan is over budget.

PARALLELISM:
  Per-resource stats are computed on a bounded errgroup. Results land in a
  pre-sized slice by index, so no lock is needed and output order matches
  input order.
*/
package scenario

import (
	"context"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/presence-engine/presence"
)

var hundred = decimal.NewFromInt(100)

// BudgetLine compares one category's envelopes with its forecast.
type BudgetLine struct {
	Envelope  decimal.Decimal `json:"envelope"`
	Forecast  decimal.Decimal `json:"forecast"`
	Remaining decimal.Decimal `json:"remaining"`
}

// ResourceForecast is one resource's contribution.
type ResourceForecast struct {
	ResourceID string          `json:"resource_id"`
	Name       string          `json:"name"`
	Days       decimal.Decimal `json:"days"`
	Cost       decimal.Decimal `json:"cost"`
	Run        decimal.Decimal `json:"run"`
	Change     decimal.Decimal `json:"change"`
}

// BudgetSummary is the forecast of a scenario for a year.
type BudgetSummary struct {
	ScenarioID string             `json:"scenario_id"`
	Year       int                `json:"year"`
	Run        BudgetLine         `json:"run"`
	Change     BudgetLine         `json:"change"`
	Total      BudgetLine         `json:"total"`
	Resources  []ResourceForecast `json:"resources"`
}

// SplitCost divides cost between RUN and CHANGE using a 0-100 ratio.
func SplitCost(cost decimal.Decimal, changeRatio int) (run, change decimal.Decimal) {
	change = cost.Mul(decimal.NewFromInt(int64(changeRatio))).Div(hundred)
	return cost.Sub(change), change
}

// Forecast computes the budget summary of s over resources for year.
// Resources are read through cache, so unchanged resources are not
// re-aggregated.
func Forecast(ctx context.Context, cache *presence.StatsCache, s *Scenario, resources []*presence.Resource, year int) (*BudgetSummary, error) {
	lines := make([]ResourceForecast, len(resources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, r := range resources {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			st := cache.Get(r, year)
			run, change := SplitCost(st.Cost, r.ChangeRatio)
			lines[i] = ResourceForecast{
				ResourceID: r.ID,
				Name:       r.Name(),
				Days:       st.Days,
				Cost:       st.Cost,
				Run:        run,
				Change:     change,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &BudgetSummary{
		ScenarioID: s.ID,
		Year:       year,
		Run:        zeroLine(),
		Change:     zeroLine(),
		Resources:  lines,
	}
	for _, e := range s.Envelopes {
		switch e.Type {
		case EnvelopeRun:
			sum.Run.Envelope = sum.Run.Envelope.Add(e.Amount)
		case EnvelopeChange:
			sum.Change.Envelope = sum.Change.Envelope.Add(e.Amount)
		}
	}
	for _, l := range lines {
		sum.Run.Forecast = sum.Run.Forecast.Add(l.Run)
		sum.Change.Forecast = sum.Change.Forecast.Add(l.Change)
	}
	sum.Run.Remaining = sum.Run.Envelope.Sub(sum.Run.Forecast)
	sum.Change.Remaining = sum.Change.Envelope.Sub(sum.Change.Forecast)
	sum.Total = BudgetLine{
		Envelope:  sum.Run.Envelope.Add(sum.Change.Envelope),
		Forecast:  sum.Run.Forecast.Add(sum.Change.Forecast),
		Remaining: sum.Run.Remaining.Add(sum.Change.Remaining),
	}
	return sum, nil
}

func zeroLine() BudgetLine {
	return BudgetLine{Envelope: decimal.Zero, Forecast: decimal.Zero, Remaining: decimal.Zero}
}
