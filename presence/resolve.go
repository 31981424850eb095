/*
resolve.go - Day status resolution

RULES (applied in order):
  1. Default: 0 on weekends and holidays, 1 otherwise.
  2. Override: an explicit entry for the date replaces the default.
  3. Contract bounds: outside [StartDate, EndDate] the value is 0, even
     when an override says otherwise.

Holidays are the union of the country's static table and the resource's
dynamic (imported) holidays. Bounds are compared as ISO strings; an empty
bound is unbounded.
*/
package presence

import "slices"

// Resolve computes the status of r on d. It is pure and deterministic.
func Resolve(d Date, r *Resource) DayStatus {
	st := DayStatus{
		Date:        d,
		OutOfBounds: d < r.StartDate.orMin() || d > r.EndDate.orMax(),
		IsHoliday:   IsStaticHoliday(r.Country, d) || slices.Contains(r.DynamicHolidays, d),
		IsWeekend:   d.IsWeekend(),
	}

	st.DefaultValue = FullDay
	if st.IsHoliday || st.IsWeekend {
		st.DefaultValue = Absent
	}

	override, ok := r.Overrides[d]
	st.OverrideActive = ok
	if ok {
		st.Value = override
	} else {
		st.Value = st.DefaultValue
	}

	if st.OutOfBounds {
		st.Value = Absent
	}
	return st
}

// Calendar resolves every day of the period.
func Calendar(r *Resource, p Period) []DayStatus {
	days := p.Days()
	out := make([]DayStatus, len(days))
	for i, d := range days {
		out[i] = Resolve(d, r)
	}
	return out
}
