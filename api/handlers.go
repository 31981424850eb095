/*
handlers.go - HTTP API handlers for the presence and budget engine

PURPOSE:
  Exposes the scenario manager via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Scenarios:
    GET    /api/scenarios                       List the owner's scenarios
    POST   /api/scenarios/init                  Initialize the project (first DRAFT)
    GET    /api/scenarios/active                Active scenario
    GET    /api/scenarios/{id}                  Scenario details
    DELETE /api/scenarios/{id}                  Delete (administrative)
    POST   /api/scenarios/{id}/fork             Fork into a new DRAFT
    POST   /api/scenarios/{id}/publish          Publish a DRAFT
    POST   /api/scenarios/{id}/restore          Make it the active scenario
    GET    /api/scenarios/{id}/budget?year=     Budget forecast

  Envelopes:
    POST   /api/scenarios/{id}/envelopes
    PUT    /api/scenarios/{id}/envelopes/{eid}
    DELETE /api/scenarios/{id}/envelopes/{eid}

  Resources:
    GET    /api/scenarios/{id}/resources?year=
    POST   /api/scenarios/{id}/resources
    PUT    /api/scenarios/{id}/resources/{rid}
    DELETE /api/scenarios/{id}/resources/{rid}
    PUT    /api/scenarios/{id}/resources/{rid}/overrides
    POST   /api/scenarios/{id}/resources/{rid}/overrides/range
    POST   /api/scenarios/{id}/resources/{rid}/holidays
    GET    /api/scenarios/{id}/resources/{rid}/stats?year=
    GET    /api/scenarios/{id}/resources/{rid}/calendar?year=

  Templates / holidays:
    GET    /api/templates?country=
    POST   /api/templates                       Create from factory JSON
    GET    /api/holidays/{country}?year=&import=true

  Admin:
    POST   /api/admin/reset

OWNERSHIP:
  The owner is taken from the X-User-ID header ("local" when absent).
  Scenarios of another owner answer 404.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Scenario/resource/envelope/template not found
  - 409: Lifecycle conflict (read-only scenario, not a draft, already initialized)
  - 207: Publish/fork committed but the resource copy failed
  - 502: Holiday source unavailable
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. X-User-ID is trusted as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - stream.go: WebSocket subscriptions
  - demo.go: Demo project loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/warp/presence-engine/factory"
	"github.com/warp/presence-engine/holidays"
	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HolidaySource imports public holidays for a country and year.
type HolidaySource interface {
	Fetch(ctx context.Context, country presence.Country, year int) ([]presence.Date, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager         *scenario.Manager
	Templates       scenario.TemplateStore
	Holidays        HolidaySource
	TemplateFactory *factory.TemplateFactory
	Logger          *slog.Logger

	now func() time.Time
}

// NewHandler creates a new handler. templates and source may be nil; the
// matching endpoints then answer 404 / skip the import.
func NewHandler(m *scenario.Manager, templates scenario.TemplateStore, source HolidaySource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		Manager:         m,
		Templates:       templates,
		Holidays:        source,
		TemplateFactory: factory.NewTemplateFactory(),
		Logger:          logger,
		now:             time.Now,
	}
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the owner's scenarios in creation order.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := h.Manager.Store().ListScenarios(r.Context(), ownerFrom(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list scenarios", err)
		return
	}
	writeJSON(w, http.StatusOK, toScenarioDTOs(list))
}

// InitProject creates the owner's first DRAFT.
func (h *Handler) InitProject(w http.ResponseWriter, r *http.Request) {
	var req CreateScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.Manager.CreateDraft(r.Context(), ownerFrom(r), req.Name)
	if err != nil {
		h.writeDomainError(w, "Failed to initialize project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScenarioDTO(s))
}

// GetActiveScenario returns the owner's active scenario.
func (h *Handler) GetActiveScenario(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Active(r.Context(), ownerFrom(r))
	if err != nil {
		h.writeDomainError(w, "No active scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, toScenarioDTO(s))
}

// GetScenario returns a single scenario.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toScenarioDTO(s))
}

// DeleteScenario removes a scenario and its resources.
func (h *Handler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	if err := h.Manager.DeleteScenario(r.Context(), s.ID); err != nil {
		h.writeDomainError(w, "Failed to delete scenario", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForkScenario creates a DRAFT copy of any scenario.
func (h *Handler) ForkScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req ForkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := h.Manager.Fork(r.Context(), s.ID, req.Name)
	var repErr *scenario.ReplicationError
	switch {
	case errors.As(err, &repErr):
		writeJSON(w, http.StatusMultiStatus, ForkResponse{ScenarioID: id, ReplicationError: repErr.Error()})
	case err != nil:
		h.writeDomainError(w, "Failed to fork scenario", err)
	default:
		writeJSON(w, http.StatusCreated, ForkResponse{ScenarioID: id})
	}
}

// PublishScenario runs the publish protocol on a DRAFT.
func (h *Handler) PublishScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}

	result, err := h.Manager.Publish(r.Context(), s.ID)
	var repErr *scenario.ReplicationError
	switch {
	case errors.As(err, &repErr):
		writeJSON(w, http.StatusMultiStatus, PublishResponse{PublishResult: result, ReplicationError: repErr.Error()})
	case err != nil:
		h.writeDomainError(w, "Failed to publish scenario", err)
	default:
		writeJSON(w, http.StatusOK, PublishResponse{PublishResult: result})
	}
}

// RestoreScenario makes a scenario the owner's active one.
func (h *Handler) RestoreScenario(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Restore(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to restore scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, toScenarioDTO(s))
}

// GetBudget returns the RUN/CHANGE forecast against envelopes.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	summary, err := h.Manager.Budget(r.Context(), s.ID, year)
	if err != nil {
		h.writeDomainError(w, "Failed to compute budget", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// ENVELOPE HANDLERS
// =============================================================================

// AddEnvelope appends a budget envelope to a DRAFT.
func (h *Handler) AddEnvelope(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req EnvelopeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	e, err := h.Manager.AddEnvelope(r.Context(), s.ID, scenario.Envelope{
		Name:   req.Name,
		Type:   req.Type,
		Amount: req.Amount,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to add envelope", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateEnvelope replaces an envelope of a DRAFT.
func (h *Handler) UpdateEnvelope(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req EnvelopeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	e := scenario.Envelope{
		ID:     chi.URLParam(r, "eid"),
		Name:   req.Name,
		Type:   req.Type,
		Amount: req.Amount,
	}
	if err := h.Manager.UpdateEnvelope(r.Context(), s.ID, e); err != nil {
		h.writeDomainError(w, "Failed to update envelope", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEnvelope removes an envelope of a DRAFT.
func (h *Handler) DeleteEnvelope(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	if err := h.Manager.DeleteEnvelope(r.Context(), s.ID, chi.URLParam(r, "eid")); err != nil {
		h.writeDomainError(w, "Failed to delete envelope", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// ListResources returns the scenario's resources with their yearly stats.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	list, err := h.Manager.Resources(r.Context(), s.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to list resources", err)
		return
	}
	dtos := make([]ResourceDTO, len(list))
	for i, res := range list {
		dtos[i] = ResourceDTO{Resource: res, Stats: h.Manager.Stats().Get(res, year)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateResource adds a resource to a DRAFT.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req CreateResourceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Manager.AddResource(r.Context(), s.ID, &req.Resource, req.TemplateID)
	if err != nil {
		h.writeDomainError(w, "Failed to add resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// UpdateResource applies a partial update to a resource of a DRAFT.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var patch presence.ResourcePatch
	if !decodeBody(w, r, &patch) {
		return
	}

	res, err := h.Manager.UpdateResource(r.Context(), s.ID, chi.URLParam(r, "rid"), patch)
	if err != nil {
		h.writeDomainError(w, "Failed to update resource", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteResource removes a resource from a DRAFT.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	if err := h.Manager.DeleteResource(r.Context(), s.ID, chi.URLParam(r, "rid")); err != nil {
		h.writeDomainError(w, "Failed to delete resource", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetOverride sets or clears one day of a resource.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req OverrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, err := parseValue(req.Value)
	if err != nil {
		h.writeDomainError(w, "Invalid override", err)
		return
	}

	res, err := h.Manager.SetOverride(r.Context(), s.ID, chi.URLParam(r, "rid"), presence.Date(req.Date), value)
	if err != nil {
		h.writeDomainError(w, "Failed to set override", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetOverrideRange sets or clears every day of an inclusive range.
func (h *Handler) SetOverrideRange(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req OverrideRangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, err := parseValue(req.Value)
	if err != nil {
		h.writeDomainError(w, "Invalid override", err)
		return
	}

	res, err := h.Manager.SetOverrideRange(r.Context(), s.ID, chi.URLParam(r, "rid"),
		presence.Date(req.From), presence.Date(req.To), value)
	if err != nil {
		h.writeDomainError(w, "Failed to set override range", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ApplyHolidays merges given or imported dates into a resource's dynamic
// holidays.
func (h *Handler) ApplyHolidays(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	var req HolidaysRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	rid := chi.URLParam(r, "rid")

	dates := make([]presence.Date, 0, len(req.Dates))
	for _, d := range req.Dates {
		dates = append(dates, presence.Date(d))
	}
	if req.Import {
		if h.Holidays == nil {
			writeError(w, http.StatusServiceUnavailable, "Holiday import is not configured", nil)
			return
		}
		current, err := h.Manager.Resource(ctx, s.ID, rid)
		if err != nil {
			h.writeDomainError(w, "Failed to get resource", err)
			return
		}
		year := req.Year
		if year == 0 {
			year = h.now().Year()
		}
		imported, err := h.Holidays.Fetch(ctx, current.Country, year)
		if err != nil {
			h.writeDomainError(w, "Failed to import holidays", err)
			return
		}
		dates = append(dates, imported...)
	}

	res, err := h.Manager.ApplyHolidays(ctx, s.ID, rid, dates)
	if err != nil {
		h.writeDomainError(w, "Failed to apply holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetResourceStats returns days and cost for a year.
func (h *Handler) GetResourceStats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	stats, err := h.Manager.ResourceStats(r.Context(), s.ID, chi.URLParam(r, "rid"), year)
	if err != nil {
		h.writeDomainError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetResourceCalendar returns every resolved day of a year with monthly totals.
func (h *Handler) GetResourceCalendar(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	res, err := h.Manager.Resource(r.Context(), s.ID, chi.URLParam(r, "rid"))
	if err != nil {
		h.writeDomainError(w, "Failed to get resource", err)
		return
	}
	writeJSON(w, http.StatusOK, CalendarDTO{
		ResourceID: res.ID,
		Year:       year,
		Totals:     h.Manager.Stats().Get(res, year).Totals,
		Months:     presence.MonthlyBreakdown(res, year),
		Days:       presence.Calendar(res, presence.YearPeriod(year)),
	})
}

// =============================================================================
// TEMPLATE & HOLIDAY HANDLERS
// =============================================================================

// ListTemplates returns templates, optionally for one country.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if h.Templates == nil {
		writeJSON(w, http.StatusOK, []presence.Template{})
		return
	}
	country := presence.Country(strings.ToUpper(r.URL.Query().Get("country")))
	list, err := h.Templates.ListTemplates(r.Context(), country)
	if err != nil {
		h.writeDomainError(w, "Failed to list templates", err)
		return
	}
	if list == nil {
		list = []presence.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateTemplate builds a template from rule JSON and saves it.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	if h.Templates == nil {
		writeError(w, http.StatusServiceUnavailable, "Templates are not configured", nil)
		return
	}
	var req factory.TemplateJSON
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.TemplateFactory.FromJSON(req)
	if err != nil {
		h.writeDomainError(w, "Invalid template", err)
		return
	}
	id, err := h.Templates.SaveTemplate(r.Context(), *t)
	if err != nil {
		h.writeDomainError(w, "Failed to save template", err)
		return
	}
	t.ID = id
	writeJSON(w, http.StatusCreated, t)
}

// GetHolidays lists a country's static holidays and, with import=true,
// the imported ones.
func (h *Handler) GetHolidays(w http.ResponseWriter, r *http.Request) {
	country := presence.Country(strings.ToUpper(chi.URLParam(r, "country")))
	if !country.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown country", nil)
		return
	}
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	dto := HolidaysDTO{
		Country: country,
		Year:    year,
		Static:  presence.StaticHolidays(country, year),
	}
	if r.URL.Query().Get("import") == "true" && h.Holidays != nil {
		imported, err := h.Holidays.Fetch(r.Context(), country, year)
		if err != nil {
			h.writeDomainError(w, "Failed to import holidays", err)
			return
		}
		dto.Imported = imported
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase deletes every scenario and resource. Templates are kept.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

const ownerHeader = "X-User-ID"

func ownerFrom(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(ownerHeader)); owner != "" {
		return owner
	}
	return "local"
}

// scenarioFor loads the {id} scenario and checks it belongs to the caller.
// It writes the error response itself and reports whether to continue.
func (h *Handler) scenarioFor(w http.ResponseWriter, r *http.Request) (*scenario.Scenario, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.Manager.Store().GetScenario(r.Context(), id)
	if err == nil && s.OwnerID != ownerFrom(r) {
		err = scenario.ErrScenarioNotFound
	}
	if err != nil {
		h.writeDomainError(w, "Scenario not found", err)
		return nil, false
	}
	return s, true
}

func (h *Handler) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.now().Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
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

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeDomainError maps domain errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case scenario.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case scenario.IsNotFound(err), errors.Is(err, holidays.ErrNoData):
		writeError(w, http.StatusNotFound, message, err)
	case scenario.IsStateError(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, holidays.ErrUnavailable):
		writeError(w, http.StatusBadGateway, message, err)
	default:
		h.Logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
