/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Scenarios:
    ScenarioDTO, CreateScenarioRequest, ForkRequest, PublishResponse

  Envelopes:
    EnvelopeRequest

  Resources:
    ResourceDTO, CreateResourceRequest, OverrideRequest,
    OverrideRangeRequest, HolidaysRequest, CalendarDTO

  Templates / holidays:
    factory.TemplateJSON (request), HolidaysDTO

  Demo:
    DemoDTO, LoadDemoRequest

VALIDATION:
  Validation is done by the domain packages (presence, scenario), not in
  DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/template.go: TemplateJSON type
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a scenario in API responses.
type ScenarioDTO struct {
	scenario.Scenario
	Editable bool `json:"editable"`
}

func toScenarioDTO(s *scenario.Scenario) ScenarioDTO {
	return ScenarioDTO{Scenario: *s, Editable: scenario.Editable(s)}
}

func toScenarioDTOs(list []scenario.Scenario) []ScenarioDTO {
	dtos := make([]ScenarioDTO, len(list))
	for i := range list {
		dtos[i] = toScenarioDTO(&list[i])
	}
	return dtos
}

// CreateScenarioRequest initializes a project.
type CreateScenarioRequest struct {
	Name string `json:"name"`
}

// ForkRequest names the fork; empty means "<source> (copy)".
type ForkRequest struct {
	Name string `json:"name"`
}

// ForkResponse is returned by POST /api/scenarios/{id}/fork.
type ForkResponse struct {
	ScenarioID       string `json:"scenario_id"`
	ReplicationError string `json:"replication_error,omitempty"`
}

// PublishResponse is returned by POST /api/scenarios/{id}/publish.
// A non-empty ReplicationError comes with status 207: the promotion is
// committed, the new draft has no resources.
type PublishResponse struct {
	*scenario.PublishResult
	ReplicationError string `json:"replication_error,omitempty"`
}

// =============================================================================
// ENVELOPES
// =============================================================================

// EnvelopeRequest creates or replaces an envelope.
type EnvelopeRequest struct {
	Name   string                `json:"name"`
	Type   scenario.EnvelopeType `json:"type"`
	Amount decimal.Decimal       `json:"amount"`
}

// =============================================================================
// RESOURCES
// =============================================================================

// ResourceDTO is a resource with its statistics for the requested year.
type ResourceDTO struct {
	*presence.Resource
	Stats *presence.Stats `json:"stats,omitempty"`
}

// CreateResourceRequest adds a resource, optionally seeded from a template.
// Without template_id the country default template (if any) is used.
type CreateResourceRequest struct {
	presence.Resource
	TemplateID string `json:"template_id,omitempty"`
}

// OverrideRequest sets one day. A null value clears the override.
type OverrideRequest struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// OverrideRangeRequest sets every day of an inclusive range.
type OverrideRangeRequest struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Value *float64 `json:"value"`
}

// HolidaysRequest merges dates into a resource's dynamic holidays, either
// given explicitly or imported for the resource's country and Year.
type HolidaysRequest struct {
	Dates  []string `json:"dates,omitempty"`
	Import bool     `json:"import,omitempty"`
	Year   int      `json:"year,omitempty"`
}

// CalendarDTO is a resource's resolved year.
type CalendarDTO struct {
	ResourceID string               `json:"resource_id"`
	Year       int                  `json:"year"`
	Totals     presence.Totals      `json:"totals"`
	Months     [12]presence.Totals  `json:"months"`
	Days       []presence.DayStatus `json:"days"`
}

// =============================================================================
// TEMPLATES / HOLIDAYS
// =============================================================================

// HolidaysDTO lists a country's holidays for a year.
type HolidaysDTO struct {
	Country  presence.Country `json:"country"`
	Year     int              `json:"year"`
	Static   []presence.Date  `json:"static"`
	Imported []presence.Date  `json:"imported,omitempty"`
}

// =============================================================================
// DEMO
// =============================================================================

// DemoDTO describes a demo project.
type DemoDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadDemoRequest selects a demo project.
type LoadDemoRequest struct {
	DemoID string `json:"demo_id"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
