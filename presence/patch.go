package presence

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESOURCE PATCH - Partial, immutable update
// =============================================================================

// ResourcePatch is a partial update. Nil fields are left unchanged.
//
// Overrides is a delta: a nil value removes the entry (back to the default
// rule), a non-nil value sets it. DynamicHolidays, when non-nil, replaces
// the whole list.
type ResourcePatch struct {
	FirstName       *string            `json:"first_name,omitempty"`
	LastName        *string            `json:"last_name,omitempty"`
	Team            *string            `json:"team,omitempty"`
	Contract        *ContractType      `json:"contract,omitempty"`
	Rate            *decimal.Decimal   `json:"tjm,omitempty"`
	Country         *Country           `json:"country,omitempty"`
	ChangeRatio     *int               `json:"change_ratio,omitempty"`
	StartDate       *Date              `json:"start_date,omitempty"`
	EndDate         *Date              `json:"end_date,omitempty"`
	Overrides       map[Date]*Presence `json:"overrides,omitempty"`
	DynamicHolidays []Date             `json:"dynamic_holidays,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ResourcePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Team == nil &&
		p.Contract == nil && p.Rate == nil && p.Country == nil &&
		p.ChangeRatio == nil && p.StartDate == nil && p.EndDate == nil &&
		len(p.Overrides) == 0 && p.DynamicHolidays == nil
}

// Apply returns a new resource with the patch applied. r is not modified.
func (p ResourcePatch) Apply(r *Resource) *Resource {
	out := r.Clone()
	if p.FirstName != nil {
		out.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.LastName = *p.LastName
	}
	if p.Team != nil {
		out.Team = *p.Team
	}
	if p.Contract != nil {
		out.Contract = *p.Contract
	}
	if p.Rate != nil {
		out.Rate = *p.Rate
	}
	if p.Country != nil {
		out.Country = *p.Country
	}
	if p.ChangeRatio != nil {
		out.ChangeRatio = *p.ChangeRatio
	}
	if p.StartDate != nil {
		out.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		out.EndDate = *p.EndDate
	}
	if len(p.Overrides) > 0 {
		if out.Overrides == nil {
			out.Overrides = make(map[Date]Presence, len(p.Overrides))
		}
		for d, v := range p.Overrides {
			if v == nil {
				delete(out.Overrides, d)
				continue
			}
			out.Overrides[d] = *v
		}
	}
	if p.DynamicHolidays != nil {
		out.DynamicHolidays = MergeDates(p.DynamicHolidays, nil)
	}
	return out
}

// Validate checks the values the patch would write.
func (p ResourcePatch) Validate() error {
	for d, v := range p.Overrides {
		if !d.Valid() {
			return fieldError("overrides", ErrInvalidDate, "%q is not YYYY-MM-DD", d)
		}
		if v != nil && !v.Valid() {
			return fieldError("overrides", ErrInvalidPresence, "%s: %v is not one of 0, 0.5, 1", d, float64(*v))
		}
	}
	return nil
}

// OverrideRange builds the override delta that sets (or clears, with a nil
// value) every day of the inclusive range.
func OverrideRange(from, to Date, value *Presence) (map[Date]*Presence, error) {
	if !from.Valid() {
		return nil, fieldError("from", ErrInvalidDate, "%q is not YYYY-MM-DD", from)
	}
	if !to.Valid() {
		return nil, fieldError("to", ErrInvalidDate, "%q is not YYYY-MM-DD", to)
	}
	if from > to {
		return nil, fieldError("from", ErrInvalidRange, "%s is after %s", from, to)
	}
	if value != nil && !value.Valid() {
		return nil, fieldError("value", ErrInvalidPresence, "%v is not one of 0, 0.5, 1", float64(*value))
	}
	days := Period{Start: from, End: to}.Days()
	delta := make(map[Date]*Presence, len(days))
	for _, d := range days {
		delta[d] = value
	}
	return delta, nil
}

// PresencePtr returns a pointer to v, for building override deltas.
func PresencePtr(v Presence) *Presence { return &v }
