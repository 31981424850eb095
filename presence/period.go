package presence

import "time"

// =============================================================================
// PERIOD - Inclusive window of calendar days
// =============================================================================

// Period is an inclusive [Start, End] window. Statistics are always computed
// over a period: a calendar year for the yearly view, a month for the
// monthly breakdown.
type Period struct {
	Start Date
	End   Date
}

// YearPeriod returns Jan 1 - Dec 31 of year.
func YearPeriod(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

// MonthPeriod returns the first to the last day of the month.
func MonthPeriod(year int, month time.Month) Period {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return Period{Start: DateOf(first), End: DateOf(last)}
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d >= p.Start && d <= p.End
}

// IsEmpty reports whether the window contains no day.
func (p Period) IsEmpty() bool {
	return p.End < p.Start
}

// Intersect narrows p to the bounds [from, to]. Empty bounds are unbounded.
func (p Period) Intersect(from, to Date) Period {
	out := p
	if from = from.orMin(); from > out.Start {
		out.Start = from
	}
	if to = to.orMax(); to < out.End {
		out.End = to
	}
	return out
}

// Days returns every day of the period in order.
func (p Period) Days() []Date {
	if p.IsEmpty() {
		return nil
	}
	var days []Date
	end := p.End.Time()
	for t := p.Start.Time(); !t.After(end); t = t.AddDate(0, 0, 1) {
		days = append(days, DateOf(t))
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
