package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

func fixedClock(h *Handler) {
	h.now = func() time.Time { return time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC) }
}

func TestDemo_List(t *testing.T) {
	_, router, _ := setupTestHandler(t)

	rec := do(t, router, "GET", "/api/demo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[[]DemoDTO](t, rec)
	require.Len(t, list, 3)
	assert.Equal(t, "starter", list[0].ID)
}

func TestDemo_LoadEach(t *testing.T) {
	tests := []struct {
		demo     string
		statuses []scenario.Status
	}{
		{"starter", []scenario.Status{scenario.StatusDraft}},
		{"published", []scenario.Status{scenario.StatusMaster, scenario.StatusDraft}},
		{"history", []scenario.Status{scenario.StatusArchived, scenario.StatusMaster, scenario.StatusDraft, scenario.StatusDraft}},
	}
	for _, tt := range tests {
		t.Run(tt.demo, func(t *testing.T) {
			h, router, _ := setupTestHandler(t)
			fixedClock(h)

			// WHEN: Loading the demo
			rec := do(t, router, "POST", "/api/demo/load", "", map[string]string{"demo_id": tt.demo})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			// THEN: The lifecycle reached the expected state
			rec = do(t, router, "GET", "/api/scenarios", "", nil)
			list := decodeAs[[]ScenarioDTO](t, rec)
			var statuses []scenario.Status
			for _, s := range list {
				statuses = append(statuses, s.Status)
			}
			assert.Equal(t, tt.statuses, statuses)

			// The active scenario is the continuation draft
			rec = do(t, router, "GET", "/api/scenarios/active", "", nil)
			active := decodeAs[ScenarioDTO](t, rec)
			assert.Equal(t, scenario.StatusDraft, active.Status)
			assert.NotEqual(t, "What-if: no contractors", active.Name)

			rec = do(t, router, "GET", "/api/scenarios/"+active.ID+"/resources?year=2025", "", nil)
			assert.Len(t, decodeAs[[]resourceStats](t, rec), 4)
		})
	}
}

func TestDemo_History(t *testing.T) {
	// GIVEN: The history demo
	h, router, _ := setupTestHandler(t)
	fixedClock(h)
	rec := do(t, router, "POST", "/api/demo/load", "", map[string]string{"demo_id": "history"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, "GET", "/api/scenarios", "", nil)
	list := decodeAs[[]ScenarioDTO](t, rec)
	require.Len(t, list, 4)
	master, fork := list[1], list[3]

	// THEN: The fork is a child of the master without external contractors
	assert.Equal(t, master.ID, fork.ParentID)
	rec = do(t, router, "GET", "/api/scenarios/"+fork.ID+"/resources", "", nil)
	assert.Len(t, decodeAs[[]resourceStats](t, rec), 2)

	// The master carries the envelope added before the second publish
	assert.Len(t, master.Envelopes, 3)

	// Templates survived both the reset and the reload
	rec = do(t, router, "GET", "/api/templates", "", nil)
	templates := decodeAs[[]presence.Template](t, rec)
	assert.Len(t, templates, 3)
}

func TestDemo_SummerBreak(t *testing.T) {
	h, router, _ := setupTestHandler(t)
	fixedClock(h)
	rec := do(t, router, "POST", "/api/demo/load", "", map[string]string{"demo_id": "published"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, "GET", "/api/scenarios", "", nil)
	list := decodeAs[[]ScenarioDTO](t, rec)
	require.Len(t, list, 2)
	master, draft := list[0], list[1]

	days := func(scenarioID string) string {
		rec := do(t, router, "GET", "/api/scenarios/"+scenarioID+"/resources?year=2025", "", nil)
		res := decodeAs[[]resourceStats](t, rec)
		require.NotEmpty(t, res)
		return res[0].Stats.Days.String()
	}

	// Camille: full FR year in the master, minus the Aug 4-15 break in the draft
	assert.Equal(t, "257", days(master.ID))
	assert.Equal(t, "247", days(draft.ID))
}

func TestDemo_Unknown(t *testing.T) {
	_, router, _ := setupTestHandler(t)
	rec := do(t, router, "POST", "/api/demo/load", "", map[string]string{"demo_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
