/*
presets.go - Ready-made calendar template definitions

These functions return JSON template definitions for common working
patterns. Parse them with TemplateFactory.Parse.

AVAILABLE PRESETS:
  FullTimeJSON:      No overrides; the country's default rule applies
  FourFifthsJSON:    One weekday off every week of a year
  HalfDayJSON:       One weekday worked as a half day every week of a year
  SummerClosureJSON: An inclusive closure range, optionally the country default

USAGE:
  jsonStr := factory.FourFifthsJSON("fr-45", presence.CountryFR, 2025, time.Wednesday)
  tmpl, err := factory.NewTemplateFactory().Parse(jsonStr)
*/
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/warp/presence-engine/presence"
)

// FullTimeJSON returns JSON for a template with no overrides.
func FullTimeJSON(id string, country presence.Country, isDefault bool) string {
	tj := map[string]interface{}{
		"id":         id,
		"name":       fmt.Sprintf("%s full time", country),
		"country":    string(country),
		"is_default": isDefault,
	}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}

// FourFifthsJSON returns JSON for a template with one weekday off per week.
func FourFifthsJSON(id string, country presence.Country, year int, dayOff time.Weekday) string {
	return weeklyJSON(id, fmt.Sprintf("%s 4/5 (%s off)", country, dayOff), country, year, dayOff, 0)
}

// HalfDayJSON returns JSON for a template with one half day per week.
func HalfDayJSON(id string, country presence.Country, year int, halfDay time.Weekday) string {
	return weeklyJSON(id, fmt.Sprintf("%s %s half day", country, halfDay), country, year, halfDay, 0.5)
}

// SummerClosureJSON returns JSON for a template closing an inclusive range.
func SummerClosureJSON(id string, country presence.Country, from, to presence.Date, isDefault bool) string {
	tj := map[string]interface{}{
		"id":         id,
		"name":       fmt.Sprintf("%s closure %s to %s", country, from, to),
		"country":    string(country),
		"is_default": isDefault,
		"rules": []map[string]interface{}{
			{"type": "range", "from": string(from), "to": string(to), "value": 0},
		},
	}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}

func weeklyJSON(id, name string, country presence.Country, year int, wd time.Weekday, value float64) string {
	tj := map[string]interface{}{
		"id":      id,
		"name":    name,
		"country": string(country),
		"rules": []map[string]interface{}{{
			"type":    "weekday",
			"weekday": strings.ToLower(wd.String()),
			"from":    string(presence.StartOfYear(year)),
			"to":      string(presence.EndOfYear(year)),
			"value":   value,
		}},
	}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}
