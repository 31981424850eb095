/*
demo.go - Demo project loaders for testing and demonstrations

PURPOSE:

	Provides pre-built projects that populate the store with realistic
	data for demos. Each demo creates calendar templates, a project with
	resources across countries, budget envelopes, and walks the scenario
	lifecycle far enough to show a specific state.

AVAILABLE DEMOS:

	starter:   One DRAFT, four resources, RUN + CHANGE envelopes
	published: starter, published once, then edited in the new DRAFT
	history:   two publish cycles (ARCHIVED + MASTER + DRAFT) and a fork

HOW DEMOS WORK:
 1. Reset the store (scenarios and resources; templates are kept)
 2. Save calendar templates from factory presets
 3. Initialize the project for the caller
 4. Add envelopes and resources (some seeded from templates)
 5. Publish / edit / fork depending on the demo

USAGE VIA API:

	POST /api/demo/load
	{"demo_id": "published"}

NOTE:

	Demos reset the store for every owner. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: Handler and helpers
  - factory/presets.go: Template JSON definitions
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/presence-engine/factory"
	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

// =============================================================================
// DEMO DEFINITIONS
// =============================================================================

var demos = []DemoDTO{
	{
		ID:          "starter",
		Name:        "Starter",
		Description: "A single draft with four resources and RUN/CHANGE envelopes",
	},
	{
		ID:          "published",
		Name:        "Published",
		Description: "Starter published once, then edited in the continuation draft",
	},
	{
		ID:          "history",
		Name:        "History",
		Description: "Two publish cycles (archived, master, draft) plus a what-if fork",
	},
}

// ListDemos returns available demo projects.
func (h *Handler) ListDemos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, demos)
}

// LoadDemo resets the store and loads a demo project for the caller.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	var req LoadDemoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	owner := ownerFrom(r)
	active, err := h.LoadDemoProject(r.Context(), owner, req.DemoID)
	if errors.Is(err, ErrUnknownDemo) {
		writeError(w, http.StatusBadRequest, "Unknown demo", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load demo: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "loaded",
		"demo":   req.DemoID,
		"active": toScenarioDTO(active),
	})
}

// ErrUnknownDemo is returned by LoadDemoProject for an id not in ListDemos.
var ErrUnknownDemo = errors.New("unknown demo")

// LoadDemoProject resets the store and loads demoID for owner. It returns
// the scenario left active.
func (h *Handler) LoadDemoProject(ctx context.Context, owner, demoID string) (*scenario.Scenario, error) {
	var load func(context.Context, string) (*scenario.Scenario, error)
	switch demoID {
	case "starter":
		load = h.loadStarterDemo
	case "published":
		load = h.loadPublishedDemo
	case "history":
		load = h.loadHistoryDemo
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDemo, demoID)
	}

	if err := h.Manager.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	active, err := load(ctx, owner)
	if err != nil {
		return nil, err
	}
	h.Logger.Info("demo loaded", "demo", demoID, "owner", owner, "active", active.ID)
	return active, nil
}

// =============================================================================
// DEMO LOADERS
// =============================================================================

func (h *Handler) loadStarterDemo(ctx context.Context, owner string) (*scenario.Scenario, error) {
	year := h.now().Year()
	fourFifths, err := h.saveDemoTemplates(ctx, year)
	if err != nil {
		return nil, err
	}

	d, err := h.Manager.CreateDraft(ctx, owner, fmt.Sprintf("Budget %d", year))
	if err != nil {
		return nil, err
	}

	envelopes := []scenario.Envelope{
		{Name: "Platform run", Type: scenario.EnvelopeRun, Amount: decimal.NewFromInt(250000)},
		{Name: "Data migration", Type: scenario.EnvelopeChange, Amount: decimal.NewFromInt(120000)},
	}
	for _, e := range envelopes {
		if _, err := h.Manager.AddEnvelope(ctx, d.ID, e); err != nil {
			return nil, err
		}
	}

	start := presence.StartOfYear(year)
	end := presence.EndOfYear(year)
	resources := []struct {
		r        *presence.Resource
		template string
	}{
		{demoResource("Camille", "Martin", "Platform", presence.ContractInternal, 450, presence.CountryFR, 20, start, end), ""},
		{demoResource("Hugo", "Bernard", "Platform", presence.ContractInternal, 420, presence.CountryFR, 0, start, end), fourFifths},
		{demoResource("Inês", "Costa", "Data", presence.ContractExternal, 380, presence.CountryPT, 80, start, end), ""},
		{demoResource("Arjun", "Rao", "Data", presence.ContractExternal, 250, presence.CountryIN, 100,
			presence.NewDate(year, time.March, 1), presence.NewDate(year, time.October, 31)), ""},
	}
	for _, res := range resources {
		if _, err := h.Manager.AddResource(ctx, d.ID, res.r, res.template); err != nil {
			return nil, fmt.Errorf("add %s: %w", res.r.Name(), err)
		}
	}

	return h.Manager.Restore(ctx, owner, d.ID)
}

func (h *Handler) loadPublishedDemo(ctx context.Context, owner string) (*scenario.Scenario, error) {
	d, err := h.loadStarterDemo(ctx, owner)
	if err != nil {
		return nil, err
	}
	result, err := h.Manager.Publish(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	// Plan a two-week summer break for everyone in the new draft
	year := h.now().Year()
	list, err := h.Manager.Resources(ctx, result.DraftID)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if _, err := h.Manager.SetOverrideRange(ctx, result.DraftID, r.ID,
			presence.NewDate(year, time.August, 4), presence.NewDate(year, time.August, 15),
			presence.PresencePtr(presence.Absent)); err != nil {
			return nil, err
		}
	}
	if len(list) > 0 {
		ratio := 50
		if _, err := h.Manager.UpdateResource(ctx, result.DraftID, list[0].ID,
			presence.ResourcePatch{ChangeRatio: &ratio}); err != nil {
			return nil, err
		}
	}

	return h.Manager.Restore(ctx, owner, result.DraftID)
}

func (h *Handler) loadHistoryDemo(ctx context.Context, owner string) (*scenario.Scenario, error) {
	d, err := h.loadPublishedDemo(ctx, owner)
	if err != nil {
		return nil, err
	}
	if _, err := h.Manager.AddEnvelope(ctx, d.ID, scenario.Envelope{
		Name: "Security hardening", Type: scenario.EnvelopeChange, Amount: decimal.NewFromInt(40000),
	}); err != nil {
		return nil, err
	}
	result, err := h.Manager.Publish(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	// What-if: fork the master and drop the external contractors
	forkID, err := h.Manager.Fork(ctx, result.MasterID, "What-if: no contractors")
	if err != nil {
		return nil, err
	}
	list, err := h.Manager.Resources(ctx, forkID)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if r.Contract == presence.ContractExternal {
			if err := h.Manager.DeleteResource(ctx, forkID, r.ID); err != nil {
				return nil, err
			}
		}
	}

	return h.Manager.Restore(ctx, owner, result.DraftID)
}

// =============================================================================
// HELPERS
// =============================================================================

// saveDemoTemplates stores the demo templates and returns the FR 4/5 id.
func (h *Handler) saveDemoTemplates(ctx context.Context, year int) (string, error) {
	if h.Templates == nil {
		return "", nil
	}
	defs := []string{
		factory.FourFifthsJSON("demo-fr-45", presence.CountryFR, year, time.Wednesday),
		factory.SummerClosureJSON("demo-pt-closure", presence.CountryPT,
			presence.NewDate(year, time.August, 11), presence.NewDate(year, time.August, 22), true),
		factory.HalfDayJSON("demo-in-friday", presence.CountryIN, year, time.Friday),
	}
	var ids []string
	for _, def := range defs {
		t, err := h.TemplateFactory.Parse(def)
		if err != nil {
			return "", err
		}
		id, err := h.Templates.SaveTemplate(ctx, *t)
		if err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	return ids[0], nil
}

func demoResource(first, last, team string, contract presence.ContractType, rate int64,
	country presence.Country, changeRatio int, start, end presence.Date) *presence.Resource {
	return &presence.Resource{
		FirstName:   first,
		LastName:    last,
		Team:        team,
		Contract:    contract,
		Rate:        decimal.NewFromInt(rate),
		Country:     country,
		ChangeRatio: changeRatio,
		StartDate:   start,
		EndDate:     end,
	}
}
