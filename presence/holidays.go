package presence

// =============================================================================
// STATIC HOLIDAY TABLE - Fixed-date public holidays per country
// =============================================================================

// staticHolidays holds the built-in recurring holidays as MM-DD. Moveable
// feasts (Easter and friends) are not in the table; they arrive through the
// holiday import as dynamic holidays.
var staticHolidays = map[Country]map[string]struct{}{
	CountryFR: set("01-01", "05-01", "07-14", "12-25"),
	CountryPT: set("01-01", "04-25", "05-01", "06-10", "08-15", "10-05", "11-01", "12-01", "12-08", "12-25"),
	CountryIN: set("01-26", "08-15", "10-02", "12-25"),
	CountryCO: set("01-01", "05-01", "07-20", "08-07", "12-08", "12-25"),
}

func set(monthDays ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(monthDays))
	for _, md := range monthDays {
		m[md] = struct{}{}
	}
	return m
}

// IsStaticHoliday reports whether d is in the country's built-in table.
func IsStaticHoliday(c Country, d Date) bool {
	_, ok := staticHolidays[c][d.monthDay()]
	return ok
}

// StaticHolidays returns the country's built-in holidays for one year, sorted.
func StaticHolidays(c Country, year int) []Date {
	var out []Date
	for _, d := range YearPeriod(year).Days() {
		if IsStaticHoliday(c, d) {
			out = append(out, d)
		}
	}
	return out
}

// holidaySet is the union of a resource's static and dynamic holidays,
// precomputed once per aggregation so each day is an O(1) lookup.
type holidaySet struct {
	static  map[string]struct{}
	dynamic map[Date]struct{}
}

func newHolidaySet(r *Resource) holidaySet {
	hs := holidaySet{static: staticHolidays[r.Country]}
	if len(r.DynamicHolidays) > 0 {
		hs.dynamic = make(map[Date]struct{}, len(r.DynamicHolidays))
		for _, d := range r.DynamicHolidays {
			hs.dynamic[d] = struct{}{}
		}
	}
	return hs
}

func (hs holidaySet) contains(d Date) bool {
	if _, ok := hs.dynamic[d]; ok {
		return true
	}
	_, ok := hs.static[d.monthDay()]
	return ok
}
