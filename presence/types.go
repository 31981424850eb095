/*
Package presence computes daily presence and cost for tracked resources.

PURPOSE:
  A resource (employee or contractor) is present, half present or absent on
  every calendar day. The default comes from the calendar (weekends and
  holidays are off), manual overrides take precedence, and the contract
  bounds win over everything. Summing a year gives days worked and cost.

KEY CONCEPTS IN THIS FILE (types.go):
  - Presence: the per-day value, one of 0, 0.5, 1
  - Resource: a person/contract with rate, country, bounds and overrides
  - Template: a reusable preset of overrides used to seed new resources
  - Totals / Stats: aggregated days and cost

DESIGN PRINCIPLES:
  1. Immutability: edits build a new *Resource, never mutate in place.
     The stats cache keys on pointer identity and relies on this.
  2. Precision: rates and costs use decimal.Decimal.
  3. Purity: Resolve and Aggregate have no side effects and no hidden state.

SEE ALSO:
  - resolve.go: per-day status
  - aggregate.go: yearly/period/monthly totals
  - stats.go: identity-keyed stats cache
*/
package presence

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRESENCE VALUE
// =============================================================================

// Presence is the share of a day a resource is working.
type Presence float64

const (
	Absent  Presence = 0
	HalfDay Presence = 0.5
	FullDay Presence = 1
)

// Valid reports whether p is one of the three supported granularities.
func (p Presence) Valid() bool {
	return p == Absent || p == HalfDay || p == FullDay
}

// halves returns p in half-day units so sums stay exact.
func (p Presence) halves() int64 {
	switch p {
	case FullDay:
		return 2
	case HalfDay:
		return 1
	default:
		return 0
	}
}

// ParsePresence converts a raw number into a Presence.
func ParsePresence(v float64) (Presence, error) {
	p := Presence(v)
	if !p.Valid() {
		return 0, fieldError("value", ErrInvalidPresence, "%v is not one of 0, 0.5, 1", v)
	}
	return p, nil
}

// =============================================================================
// ENUMS
// =============================================================================

// Country selects the static holiday table.
type Country string

const (
	CountryFR Country = "FR"
	CountryPT Country = "PT"
	CountryIN Country = "IN"
	CountryCO Country = "CO"
)

// Countries lists every supported country.
var Countries = []Country{CountryFR, CountryPT, CountryIN, CountryCO}

func (c Country) Valid() bool { return slices.Contains(Countries, c) }

// ContractType classifies the resource's contract.
type ContractType string

const (
	ContractInternal   ContractType = "INTERNAL"
	ContractExternal   ContractType = "EXTERNAL"
	ContractApprentice ContractType = "APPRENTICE"
	ContractIntern     ContractType = "INTERN"
)

// =============================================================================
// RESOURCE
// =============================================================================

// Resource is a person or contract tracked across the year.
//
// Treat values as immutable once shared: use Clone or ResourcePatch.Apply to
// derive an edited copy.
type Resource struct {
	ID              string            `json:"id"`
	FirstName       string            `json:"first_name" validate:"required"`
	LastName        string            `json:"last_name" validate:"required"`
	Team            string            `json:"team,omitempty"`
	Contract        ContractType      `json:"contract" validate:"required,oneof=INTERNAL EXTERNAL APPRENTICE INTERN"`
	Rate            decimal.Decimal   `json:"tjm"`
	Country         Country           `json:"country" validate:"required,oneof=FR PT IN CO"`
	ChangeRatio     int               `json:"change_ratio" validate:"gte=0,lte=100"`
	StartDate       Date              `json:"start_date" validate:"omitempty,isodate"`
	EndDate         Date              `json:"end_date" validate:"omitempty,isodate"`
	Overrides       map[Date]Presence `json:"overrides,omitempty"`
	DynamicHolidays []Date            `json:"dynamic_holidays,omitempty"`

	// Revision is bumped by the store on every write.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Name returns the display name.
func (r *Resource) Name() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// Clone returns a deep copy.
func (r *Resource) Clone() *Resource {
	c := *r
	if r.Overrides != nil {
		c.Overrides = make(map[Date]Presence, len(r.Overrides))
		for d, v := range r.Overrides {
			c.Overrides[d] = v
		}
	}
	c.DynamicHolidays = slices.Clone(r.DynamicHolidays)
	return &c
}

// ContractPeriod returns the contract bounds, unbounded ends filled in.
func (r *Resource) ContractPeriod() Period {
	return Period{Start: r.StartDate.orMin(), End: r.EndDate.orMax()}
}

// =============================================================================
// CALENDAR TEMPLATE
// =============================================================================

// Template is a named preset of overrides and holidays for a country.
// At most one template per country is flagged as default.
type Template struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Country         Country           `json:"country"`
	IsDefault       bool              `json:"is_default"`
	Overrides       map[Date]Presence `json:"overrides,omitempty"`
	DynamicHolidays []Date            `json:"dynamic_holidays,omitempty"`
}

// Seed copies the template's overrides and holidays into a new resource
// value. Entries already present on r are kept.
func (t *Template) Seed(r *Resource) *Resource {
	out := r.Clone()
	if len(t.Overrides) > 0 && out.Overrides == nil {
		out.Overrides = make(map[Date]Presence, len(t.Overrides))
	}
	for d, v := range t.Overrides {
		if _, ok := out.Overrides[d]; !ok {
			out.Overrides[d] = v
		}
	}
	out.DynamicHolidays = MergeDates(out.DynamicHolidays, t.DynamicHolidays)
	return out
}

// MergeDates returns the sorted union of a and b without duplicates.
func MergeDates(a, b []Date) []Date {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]Date, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// =============================================================================
// RESULTS
// =============================================================================

// DayStatus is the resolved state of one resource on one day.
// The flags are descriptive: an override can make a weekend a working day.
type DayStatus struct {
	Date           Date     `json:"date"`
	Value          Presence `json:"value"`
	DefaultValue   Presence `json:"default_value"`
	IsHoliday      bool     `json:"is_holiday"`
	IsWeekend      bool     `json:"is_weekend"`
	OverrideActive bool     `json:"override_active"`
	OutOfBounds    bool     `json:"out_of_bounds"`
}

// Totals are days worked and their cost over a period.
type Totals struct {
	Days decimal.Decimal `json:"days"`
	Cost decimal.Decimal `json:"cost"`
}

// Stats are yearly totals as served by the StatsCache.
type Stats struct {
	Year int `json:"year"`
	Totals
}
