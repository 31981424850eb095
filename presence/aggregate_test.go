package presence_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
)

func sumResolved(r *presence.Resource, p presence.Period) decimal.Decimal {
	total := decimal.Zero
	for _, day := range p.Days() {
		total = total.Add(decimal.NewFromFloat(float64(presence.Resolve(day, r).Value)))
	}
	return total
}

// =============================================================================
// CONCRETE SCENARIOS
// =============================================================================

func TestAggregate_France2025_FullYear(t *testing.T) {
	// GIVEN: Present all of 2025, no overrides, country FR
	// 365 days - 104 weekend days - 4 weekday holidays
	r := newResource(presence.CountryFR, "2025-01-01", "2025-12-31")

	totals := presence.Aggregate(r, 2025)

	assert.True(t, totals.Days.Equal(decimal.NewFromInt(257)), "got %s", totals.Days)
	assert.True(t, totals.Cost.Equal(decimal.NewFromInt(257*500)), "got %s", totals.Cost)
}

func TestAggregate_SingleWeek(t *testing.T) {
	tests := []struct {
		name      string
		end       string
		overrides map[presence.Date]presence.Presence
		want      string
	}{
		{
			name:      "tuesday off",
			end:       "2025-03-07",
			overrides: map[presence.Date]presence.Presence{d("2025-03-04"): presence.Absent},
			want:      "4",
		},
		{
			name:      "tuesday half day",
			end:       "2025-03-07",
			overrides: map[presence.Date]presence.Presence{d("2025-03-04"): presence.HalfDay},
			want:      "4.5",
		},
		{
			name:      "saturday worked in a mon-sun window",
			end:       "2025-03-09",
			overrides: map[presence.Date]presence.Presence{d("2025-03-08"): presence.FullDay},
			want:      "6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResource(presence.CountryFR, "2025-03-03", tt.end)
			r.Overrides = tt.overrides

			totals := presence.Aggregate(r, 2025)

			assert.Equal(t, tt.want, totals.Days.String())
		})
	}
}

func TestAggregate_CostIsDaysTimesRate(t *testing.T) {
	r := newResource(presence.CountryPT, "2025-02-10", "2025-11-20")
	r.Rate = decimal.RequireFromString("612.35")
	r.Overrides = map[presence.Date]presence.Presence{
		d("2025-02-11"): presence.HalfDay,
		d("2025-02-15"): presence.HalfDay,
	}

	totals := presence.Aggregate(r, 2025)

	assert.True(t, totals.Cost.Equal(totals.Days.Mul(r.Rate)))
}

func TestAggregate_YearOutsideContract(t *testing.T) {
	r := newResource(presence.CountryFR, "2025-01-01", "2025-12-31")

	totals := presence.Aggregate(r, 2026)

	assert.True(t, totals.Days.IsZero())
	assert.True(t, totals.Cost.IsZero())
}

// =============================================================================
// RESOLVER EQUIVALENCE
// =============================================================================

func TestAggregate_MatchesResolverSum(t *testing.T) {
	// GIVEN: Randomized resources across countries, bounds and overrides
	// THEN: the optimized path equals the per-day resolver sum
	rng := rand.New(rand.NewSource(42))
	values := []presence.Presence{presence.Absent, presence.HalfDay, presence.FullDay}
	bounds := [][2]string{
		{"", ""},
		{"2024-03-15", ""},
		{"", "2025-08-31"},
		{"2024-06-01", "2025-02-28"},
		{"2025-01-01", "2025-12-31"},
		{"2023-12-25", "2026-01-05"},
	}

	for i := 0; i < 40; i++ {
		country := presence.Countries[rng.Intn(len(presence.Countries))]
		b := bounds[rng.Intn(len(bounds))]
		r := newResource(country, b[0], b[1])
		r.Overrides = map[presence.Date]presence.Presence{}
		for j := 0; j < 60; j++ {
			day := presence.NewDate(2024+rng.Intn(2), time.Month(1+rng.Intn(12)), 1+rng.Intn(28))
			r.Overrides[day] = values[rng.Intn(len(values))]
		}
		for j := 0; j < 5; j++ {
			r.DynamicHolidays = append(r.DynamicHolidays,
				presence.NewDate(2024+rng.Intn(2), time.Month(1+rng.Intn(12)), 1+rng.Intn(28)))
		}

		for _, year := range []int{2024, 2025} {
			got := presence.Aggregate(r, year).Days
			want := sumResolved(r, presence.YearPeriod(year))
			require.True(t, got.Equal(want), "resource %d year %d: aggregate %s, resolver %s", i, year, got, want)
		}
	}
}

// =============================================================================
// PERIOD VARIANT
// =============================================================================

func TestMonthlyBreakdown_SumsToYear(t *testing.T) {
	r := newResource(presence.CountryCO, "2025-02-17", "2025-10-03")
	r.Overrides = map[presence.Date]presence.Presence{
		d("2025-03-01"): presence.FullDay,
		d("2025-07-21"): presence.HalfDay,
	}

	months := presence.MonthlyBreakdown(r, 2025)

	sum := decimal.Zero
	for _, m := range months {
		sum = sum.Add(m.Days)
	}
	assert.True(t, sum.Equal(presence.Aggregate(r, 2025).Days))
	assert.True(t, months[0].Days.IsZero(), "January is before the contract")
	assert.True(t, months[11].Days.IsZero(), "December is after the contract")
}

func TestAggregatePeriod_IntersectsContract(t *testing.T) {
	r := newResource(presence.CountryFR, "2025-03-05", "")

	totals := presence.AggregatePeriod(r, presence.Period{Start: d("2025-03-03"), End: d("2025-03-09")})

	// Wed, Thu, Fri
	assert.Equal(t, "3", totals.Days.String())
}

func TestStaticHolidays_France2025(t *testing.T) {
	got := presence.StaticHolidays(presence.CountryFR, 2025)

	assert.Equal(t, []presence.Date{d("2025-01-01"), d("2025-05-01"), d("2025-07-14"), d("2025-12-25")}, got)
}
