package presence

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day as an ISO string
// =============================================================================

// Date is a calendar day in zero-padded YYYY-MM-DD form.
//
// Dates are wall-clock days with no timezone. Keeping them as strings makes
// lexicographic order identical to chronological order, which the contract
// bounds checks rely on.
type Date string

const dateLayout = "2006-01-02"

const (
	minDate Date = "0000-00-00"
	maxDate Date = "9999-12-31"
)

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	if len(s) != len(dateLayout) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date(s), nil
}

// MustParseDate is ParseDate for literals in tests and tables.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t as seen in t's own location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Time returns midnight UTC of the day. The zero time is returned for
// malformed dates.
func (d Date) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) String() string { return string(d) }
func (d Date) IsZero() bool { return d == "" }
func (d Date) Valid() bool {
	_, err := ParseDate(string(d))
	return err == nil
}

func (d Date) Before(o Date) bool { return d < o }
func (d Date) After(o Date) bool { return d > o }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }
func (d Date) Year() int { return d.Time().Year() }
func (d Date) Month() time.Month { return d.Time().Month() }
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }
func (d Date) IsWeekend() bool { return isWeekend(d.Weekday()) }

// monthDay returns the MM-DD suffix used by the recurring holiday table.
func (d Date) monthDay() string {
	if len(d) != len(dateLayout) {
		return ""
	}
	return string(d[5:])
}

func isWeekend(wd time.Weekday) bool {
	return wd == time.Saturday || wd == time.Sunday
}

// orMin and orMax treat a missing contract bound as unbounded.
func (d Date) orMin() Date {
	if d == "" {
		return minDate
	}
	return d
}

func (d Date) orMax() Date {
	if d == "" {
		return maxDate
	}
	return d
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date { return NewDate(year, time.December, 31) }
