/*
Package factory provides JSON to Go calendar template conversion.

PURPOSE:
  Converts JSON template definitions into presence.Template objects. This
  enables calendar presets without code changes - a team lead can describe
  "every Friday off in 2025" as a rule, and the factory expands it into the
  per-day override map a resource is seeded with.

JSON SCHEMA:
  {
    "id": "fr-four-fifths",
    "name": "FR 4/5",
    "country": "FR",
    "is_default": false,
    "rules": [
      {"type": "weekday", "weekday": "friday", "from": "2025-01-01", "to": "2025-12-31", "value": 0},
      {"type": "range", "from": "2025-08-04", "to": "2025-08-22", "value": 0},
      {"type": "date", "date": "2025-12-24", "value": 0.5}
    ],
    "dynamic_holidays": ["2025-04-21"]
  }

RULE TYPES:
  date:     one day
  range:    every day of an inclusive range
  weekday:  every matching weekday of an inclusive range

  Rules are applied in order; a later rule overwrites an earlier one on the
  same day. A rule without "value" clears the day back to the default rule.

USAGE:
  factory := NewTemplateFactory()

  // From JSON string
  tmpl, err := factory.Parse(jsonString)

  // From a preset
  tmpl, err := factory.Parse(factory.FourFifthsJSON("fr-45", presence.CountryFR, 2025, time.Friday))

  // Persist it
  id, err := templates.SaveTemplate(ctx, *tmpl)

SEE ALSO:
  - presence/types.go: Template type definition
  - scenario/store.go: TemplateStore interface
*/
package factory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/warp/presence-engine/presence"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a calendar template.
type TemplateJSON struct {
	ID              string     `json:"id,omitempty"`
	Name            string     `json:"name"`
	Country         string     `json:"country"`
	IsDefault       bool       `json:"is_default,omitempty"`
	Rules           []RuleJSON `json:"rules,omitempty"`
	DynamicHolidays []string   `json:"dynamic_holidays,omitempty"`
}

// RuleJSON is one override rule.
type RuleJSON struct {
	Type    string   `json:"type"` // date, range, weekday
	Date    string   `json:"date,omitempty"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Weekday string   `json:"weekday,omitempty"`
	Value   *float64 `json:"value"`
}

// maxRuleDays bounds the expansion of a single range or weekday rule.
const maxRuleDays = 366 * 5

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts JSON templates to presence.Template.
type TemplateFactory struct{}

// NewTemplateFactory creates a new template factory.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{}
}

// Parse parses a JSON string into a Template.
func (f *TemplateFactory) Parse(jsonStr string) (*presence.Template, error) {
	var tj TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, fmt.Errorf("failed to parse template JSON: %w", err)
	}

	return f.FromJSON(tj)
}

// FromJSON converts TemplateJSON to a presence.Template.
func (f *TemplateFactory) FromJSON(tj TemplateJSON) (*presence.Template, error) {
	if strings.TrimSpace(tj.Name) == "" {
		return nil, presence.NewValidationError("name", presence.ErrMissingField, "is required")
	}
	country := presence.Country(strings.ToUpper(tj.Country))
	if !country.Valid() {
		return nil, presence.NewValidationError("country", presence.ErrInvalidField,
			fmt.Sprintf("%q is not one of %v", tj.Country, presence.Countries))
	}

	t := &presence.Template{
		ID:        tj.ID,
		Name:      tj.Name,
		Country:   country,
		IsDefault: tj.IsDefault,
	}

	overrides := make(map[presence.Date]presence.Presence)
	for i, rj := range tj.Rules {
		delta, err := expandRule(rj)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rj.Type, err)
		}
		for d, v := range delta {
			if v == nil {
				delete(overrides, d)
			} else {
				overrides[d] = *v
			}
		}
	}
	if len(overrides) > 0 {
		t.Overrides = overrides
	}

	for _, raw := range tj.DynamicHolidays {
		d, err := presence.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("dynamic_holidays: %w", err)
		}
		t.DynamicHolidays = append(t.DynamicHolidays, d)
	}
	t.DynamicHolidays = presence.MergeDates(t.DynamicHolidays, nil)

	return t, nil
}

// ToJSON converts a Template to TemplateJSON, one date rule per override.
func (f *TemplateFactory) ToJSON(t *presence.Template) TemplateJSON {
	tj := TemplateJSON{
		ID:        t.ID,
		Name:      t.Name,
		Country:   string(t.Country),
		IsDefault: t.IsDefault,
	}

	days := make([]presence.Date, 0, len(t.Overrides))
	for d := range t.Overrides {
		days = append(days, d)
	}
	slices.Sort(days)
	for _, d := range days {
		v := float64(t.Overrides[d])
		tj.Rules = append(tj.Rules, RuleJSON{Type: "date", Date: string(d), Value: &v})
	}

	for _, d := range t.DynamicHolidays {
		tj.DynamicHolidays = append(tj.DynamicHolidays, string(d))
	}
	return tj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func expandRule(rj RuleJSON) (map[presence.Date]*presence.Presence, error) {
	value, err := parseValue(rj.Value)
	if err != nil {
		return nil, err
	}

	switch rj.Type {
	case "date":
		d, err := presence.ParseDate(rj.Date)
		if err != nil {
			return nil, err
		}
		return map[presence.Date]*presence.Presence{d: value}, nil

	case "range":
		from, to, err := parseBounds(rj)
		if err != nil {
			return nil, err
		}
		return presence.OverrideRange(from, to, value)

	case "weekday":
		wd, err := parseWeekday(rj.Weekday)
		if err != nil {
			return nil, err
		}
		from, to, err := parseBounds(rj)
		if err != nil {
			return nil, err
		}
		all, err := presence.OverrideRange(from, to, value)
		if err != nil {
			return nil, err
		}
		for d := range all {
			if d.Weekday() != wd {
				delete(all, d)
			}
		}
		return all, nil

	default:
		return nil, presence.NewValidationError("type", presence.ErrInvalidField,
			fmt.Sprintf("unknown rule type %q", rj.Type))
	}
}

func parseValue(v *float64) (*presence.Presence, error) {
	if v == nil {
		return nil, nil
	}
	p, err := presence.ParsePresence(*v)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseBounds(rj RuleJSON) (presence.Date, presence.Date, error) {
	from, err := presence.ParseDate(rj.From)
	if err != nil {
		return "", "", err
	}
	to, err := presence.ParseDate(rj.To)
	if err != nil {
		return "", "", err
	}
	if to.Time().Sub(from.Time()) > maxRuleDays*24*time.Hour {
		return "", "", presence.NewValidationError("to", presence.ErrInvalidRange,
			fmt.Sprintf("rule spans more than %d days", maxRuleDays))
	}
	return from, to, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(s, wd.String()) {
			return wd, nil
		}
	}
	return 0, presence.NewValidationError("weekday", presence.ErrInvalidField,
		fmt.Sprintf("%q is not a weekday name", s))
}
