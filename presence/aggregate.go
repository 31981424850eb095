/*
aggregate.go - Yearly and period totals

PURPOSE:
  Sums per-day presence over a window and prices it at the daily rate.

HOT PATH:
  Aggregate runs for every resource on every render of a budget view, so it
  short-circuits per day instead of calling Resolve:
    1. out of contract bounds  -> 0, next day
    2. override present        -> override value, skip calendar checks
    3. holiday (O(1) set)      -> 0
    4. weekend                 -> 0
    5. otherwise               -> 1
  The result must equal the sum of Resolve(d, r).Value over the same days;
  aggregate_test.go checks this equivalence.

PRECISION:
  Days are accumulated in half-day units (int64) and converted to decimal
  once, so 0.5 sums are exact. Cost = Days * Rate.
*/
package presence

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Aggregate returns the totals of r over the calendar year.
func Aggregate(r *Resource, year int) Totals {
	return AggregatePeriod(r, YearPeriod(year))
}

// AggregatePeriod returns the totals of r over p intersected with the
// resource's contract bounds.
func AggregatePeriod(r *Resource, p Period) Totals {
	window := p.Intersect(r.StartDate, r.EndDate)
	halves := sumHalves(r, window)
	days := decimal.NewFromInt(halves).Div(two)
	return Totals{Days: days, Cost: days.Mul(r.Rate)}
}

// MonthlyBreakdown returns the totals for each month of year, January first.
func MonthlyBreakdown(r *Resource, year int) [12]Totals {
	var out [12]Totals
	for m := time.January; m <= time.December; m++ {
		out[m-1] = AggregatePeriod(r, MonthPeriod(year, m))
	}
	return out
}

func sumHalves(r *Resource, window Period) int64 {
	if window.IsEmpty() {
		return 0
	}
	holidays := newHolidaySet(r)
	start, end := r.StartDate.orMin(), r.EndDate.orMax()
	last := window.End.Time()

	var halves int64
	for t := window.Start.Time(); !t.After(last); t = t.AddDate(0, 0, 1) {
		d := DateOf(t)
		if d < start || d > end {
			continue
		}
		if v, ok := r.Overrides[d]; ok {
			halves += v.halves()
			continue
		}
		if holidays.contains(d) {
			continue
		}
		if isWeekend(t.Weekday()) {
			continue
		}
		halves += 2
	}
	return halves
}
