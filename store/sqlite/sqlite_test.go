package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
	"github.com/warp/presence-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func res(name string) *presence.Resource {
	return &presence.Resource{
		FirstName:       name,
		LastName:        "Doe",
		Team:            "Platform",
		Contract:        presence.ContractInternal,
		Rate:            decimal.RequireFromString("512.50"),
		Country:         presence.CountryFR,
		ChangeRatio:     40,
		StartDate:       "2025-01-01",
		EndDate:         "2025-12-31",
		Overrides:       map[presence.Date]presence.Presence{"2025-03-04": presence.HalfDay},
		DynamicHolidays: []presence.Date{"2025-04-21"},
	}
}

func TestSQLite_ScenarioRoundTrip(t *testing.T) {
	// GIVEN: A scenario with envelopes
	ctx := context.Background()
	s := newStore(t)
	id, err := s.CreateScenario(ctx, scenario.Scenario{
		Name:    "Budget",
		Status:  scenario.StatusDraft,
		OwnerID: "u",
		Envelopes: []scenario.Envelope{
			{ID: "e1", Name: "Ops", Type: scenario.EnvelopeRun, Amount: decimal.NewFromInt(1000)},
		},
	})
	require.NoError(t, err)

	// WHEN: It is read back and patched
	got, err := s.GetScenario(ctx, id)
	require.NoError(t, err)
	name := "Budget v2"
	require.NoError(t, s.UpdateScenario(ctx, id, scenario.ScenarioPatch{Name: &name}))
	patched, _ := s.GetScenario(ctx, id)

	// THEN: Fields survive the JSON column
	assert.Equal(t, "Budget", got.Name)
	assert.Equal(t, scenario.StatusDraft, got.Status)
	require.Len(t, got.Envelopes, 1)
	assert.Equal(t, "1000", got.Envelopes[0].Amount.String())
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, "Budget v2", patched.Name)
	require.Len(t, patched.Envelopes, 1)

	_, err = s.GetScenario(ctx, "missing")
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)
	assert.ErrorIs(t, s.UpdateScenario(ctx, "missing", scenario.ScenarioPatch{Name: &name}), scenario.ErrScenarioNotFound)
}

func TestSQLite_ResourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Name: "d", Status: scenario.StatusDraft, OwnerID: "u"})

	id, err := s.AddResource(ctx, sid, res("Ada"))
	require.NoError(t, err)

	r, err := s.GetResource(ctx, sid, id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", r.FirstName)
	assert.Equal(t, "512.5", r.Rate.String())
	assert.Equal(t, presence.HalfDay, r.Overrides["2025-03-04"])
	assert.Equal(t, []presence.Date{"2025-04-21"}, r.DynamicHolidays)
	assert.Equal(t, presence.Date("2025-01-01"), r.StartDate)
	assert.Equal(t, int64(1), r.Revision)

	// Stats are computed the same as for an in-memory value
	assert.Equal(t, presence.Aggregate(res("x"), 2025).Days.String(), presence.Aggregate(r, 2025).Days.String())
}

func TestSQLite_UpdateResource_BumpsRevision(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	id, _ := s.AddResource(ctx, sid, res("Ada"))

	next, err := s.UpdateResource(ctx, sid, id, presence.ResourcePatch{
		Overrides: map[presence.Date]*presence.Presence{
			"2025-03-04": nil,
			"2025-03-05": presence.PresencePtr(presence.Absent),
		},
	})
	require.NoError(t, err)

	stored, _ := s.GetResource(ctx, sid, id)
	assert.Equal(t, int64(2), next.Revision)
	assert.Equal(t, int64(2), stored.Revision)
	assert.NotContains(t, stored.Overrides, presence.Date("2025-03-04"))
	assert.Equal(t, presence.Absent, stored.Overrides["2025-03-05"])

	_, err = s.UpdateResource(ctx, sid, "missing", presence.ResourcePatch{})
	assert.ErrorIs(t, err, scenario.ErrResourceNotFound)
}

func TestSQLite_AddResource_Errors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})

	_, err := s.AddResource(ctx, "missing", res("Ada"))
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)

	r := res("Ada")
	r.ID = "fixed"
	_, err = s.AddResource(ctx, sid, r)
	require.NoError(t, err)
	_, err = s.AddResource(ctx, sid, r)
	assert.ErrorIs(t, err, scenario.ErrDuplicateID)
}

func TestSQLite_DeleteScenarioCascades(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	rid, _ := s.AddResource(ctx, sid, res("Ada"))

	require.NoError(t, s.DeleteScenario(ctx, sid))

	_, err := s.GetResource(ctx, sid, rid)
	assert.ErrorIs(t, err, scenario.ErrResourceNotFound)
	_, err = s.GetResourcesOnce(ctx, sid)
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)
	assert.ErrorIs(t, s.DeleteResource(ctx, sid, rid), scenario.ErrScenarioNotFound)
}

func TestSQLite_PublishAtomic(t *testing.T) {
	// GIVEN: A draft and two masters of the same owner
	ctx := context.Background()
	s := newStore(t)
	draftID, _ := s.CreateScenario(ctx, scenario.Scenario{Name: "d", Status: scenario.StatusDraft, OwnerID: "u"})
	m1, _ := s.CreateScenario(ctx, scenario.Scenario{Name: "m1", Status: scenario.StatusMaster, OwnerID: "u"})
	m2, _ := s.CreateScenario(ctx, scenario.Scenario{Name: "m2", Status: scenario.StatusMaster, OwnerID: "u"})

	// WHEN: Publishing with only one master listed
	newID, archived, err := s.PublishScenarioAtomic(ctx, draftID, "u",
		scenario.Scenario{Name: "next", ParentID: draftID}, []string{m1})
	require.NoError(t, err)
	assert.Equal(t, []string{m1, m2}, archived)

	// THEN: Both masters are archived, the draft is promoted, a continuation exists
	for _, id := range []string{m1, m2} {
		sc, _ := s.GetScenario(ctx, id)
		assert.Equal(t, scenario.StatusArchived, sc.Status)
	}
	d, _ := s.GetScenario(ctx, draftID)
	assert.Equal(t, scenario.StatusMaster, d.Status)
	n, _ := s.GetScenario(ctx, newID)
	assert.Equal(t, scenario.StatusDraft, n.Status)
	assert.Equal(t, draftID, n.ParentID)
	assert.Equal(t, "u", n.OwnerID)
}

func TestSQLite_PublishAtomic_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	draftID, _ := s.CreateScenario(ctx, scenario.Scenario{Name: "d", Status: scenario.StatusDraft, OwnerID: "u"})
	masterID, _ := s.CreateScenario(ctx, scenario.Scenario{Name: "m", Status: scenario.StatusMaster, OwnerID: "u"})

	_, _, err := s.PublishScenarioAtomic(ctx, draftID, "u", scenario.Scenario{Name: "next"}, []string{masterID, "ghost"})

	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)
	list, _ := s.ListScenarios(ctx, "u")
	require.Len(t, list, 2)
	assert.Equal(t, scenario.StatusDraft, list[0].Status)
	assert.Equal(t, scenario.StatusMaster, list[1].Status)

	// A scenario that is no longer a draft is rejected inside the transaction
	_, _, err = s.PublishScenarioAtomic(ctx, masterID, "u", scenario.Scenario{}, nil)
	assert.ErrorIs(t, err, scenario.ErrNotDraft)
}

func TestSQLite_CopyResourcesAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	dst, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.AddResource(ctx, src, res(name))
		require.NoError(t, err)
	}

	n, err := s.CopyResourcesAtomic(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	a, _ := s.GetResourcesOnce(ctx, src)
	b, _ := s.GetResourcesOnce(ctx, dst)
	require.Len(t, b, 3)
	seen := map[string]bool{}
	for _, r := range a {
		seen[r.ID] = true
	}
	for i, r := range b {
		assert.False(t, seen[r.ID], "copied resource reuses a source id")
		assert.Equal(t, a[i].FirstName, r.FirstName)
		assert.Equal(t, a[i].Overrides, r.Overrides)
	}

	_, err = s.CopyResourcesAtomic(ctx, src, "missing")
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)

	empty, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	n, err = s.CopyResourcesAtomic(ctx, empty, dst)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Templates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	first, err := s.SaveTemplate(ctx, presence.Template{
		Name:      "FR 4/5",
		Country:   presence.CountryFR,
		IsDefault: true,
		Overrides: map[presence.Date]presence.Presence{"2025-01-03": presence.Absent},
	})
	require.NoError(t, err)

	second, err := s.SaveTemplate(ctx, presence.Template{Name: "FR full", Country: presence.CountryFR, IsDefault: true})
	require.NoError(t, err)

	def, err := s.DefaultTemplate(ctx, presence.CountryFR)
	require.NoError(t, err)
	assert.Equal(t, second, def.ID)

	old, err := s.GetTemplate(ctx, first)
	require.NoError(t, err)
	assert.False(t, old.IsDefault)
	assert.Equal(t, presence.Absent, old.Overrides["2025-01-03"])

	list, _ := s.ListTemplates(ctx, presence.CountryFR)
	require.Len(t, list, 2)
	assert.Equal(t, "FR 4/5", list[0].Name)

	none, err := s.DefaultTemplate(ctx, presence.CountryCO)
	assert.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.DeleteTemplate(ctx, first))
	_, err = s.GetTemplate(ctx, first)
	assert.ErrorIs(t, err, scenario.ErrTemplateNotFound)
}

func TestSQLite_ResetKeepsTemplates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	_, _ = s.AddResource(ctx, sid, res("Ada"))
	_, _ = s.SaveTemplate(ctx, presence.Template{Name: "T", Country: presence.CountryPT})

	require.NoError(t, s.Reset(ctx))

	list, _ := s.ListScenarios(ctx, "u")
	assert.Empty(t, list)
	templates, _ := s.ListTemplates(ctx, "")
	assert.Len(t, templates, 1)
}

func TestSQLite_SubscribeResources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})

	var mu sync.Mutex
	var latest []*presence.Resource
	s.SubscribeResources(ctx, sid, func(list []*presence.Resource) {
		mu.Lock()
		latest = list
		mu.Unlock()
	}, func(err error) { t.Errorf("unexpected error: %v", err) })

	for _, name := range []string{"a", "b"} {
		_, err := s.AddResource(ctx, sid, res(name))
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSQLite_WithManager(t *testing.T) {
	// GIVEN: The scenario manager running on SQLite
	ctx := context.Background()
	s := newStore(t)
	m := scenario.NewManager(s, scenario.WithTemplates(s))
	d, err := m.CreateDraft(ctx, "u", "Budget")
	require.NoError(t, err)
	_, err = m.AddResource(ctx, d.ID, res("Ada"), "")
	require.NoError(t, err)

	// WHEN: Publishing
	result, err := m.Publish(ctx, d.ID)
	require.NoError(t, err)

	// THEN: The continuation draft carries a copy of the resources and the master is frozen
	assert.Equal(t, 1, result.Copied)
	copied, err := m.Resources(ctx, result.DraftID)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, "Ada", copied[0].FirstName)

	_, err = m.AddResource(ctx, d.ID, res("Bob"), "")
	assert.ErrorIs(t, err, scenario.ErrReadOnly)
}

func TestSQLite_ResourceWritesRequireDraft(t *testing.T) {
	// GIVEN: A resource in a scenario that has since become a MASTER
	ctx := context.Background()
	s := newStore(t)
	sid, _ := s.CreateScenario(ctx, scenario.Scenario{Status: scenario.StatusDraft, OwnerID: "u"})
	rid, err := s.AddResource(ctx, sid, res("Ada"))
	require.NoError(t, err)
	master := scenario.StatusMaster
	require.NoError(t, s.UpdateScenario(ctx, sid, scenario.ScenarioPatch{Status: &master}))

	// WHEN: Writing to it inside the store's own transaction
	_, addErr := s.AddResource(ctx, sid, res("Bob"))
	team := "Core"
	_, updErr := s.UpdateResource(ctx, sid, rid, presence.ResourcePatch{Team: &team})
	delErr := s.DeleteResource(ctx, sid, rid)
	envErr := s.UpdateScenario(ctx, sid, scenario.ScenarioPatch{Envelopes: []scenario.Envelope{}})

	// THEN: Every write is refused and the rows are untouched
	assert.ErrorIs(t, addErr, scenario.ErrReadOnly)
	assert.ErrorIs(t, updErr, scenario.ErrReadOnly)
	assert.ErrorIs(t, delErr, scenario.ErrReadOnly)
	assert.ErrorIs(t, envErr, scenario.ErrReadOnly)
	list, _ := s.GetResourcesOnce(ctx, sid)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Revision)
}

func TestSQLite_InitScenario(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.InitScenario(ctx, scenario.Scenario{Name: "first", Status: scenario.StatusDraft, OwnerID: "u"})
	require.NoError(t, err)

	_, err = s.InitScenario(ctx, scenario.Scenario{Name: "second", Status: scenario.StatusDraft, OwnerID: "u"})
	assert.ErrorIs(t, err, scenario.ErrAlreadyInitialized)

	list, _ := s.ListScenarios(ctx, "u")
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].Name)
}
