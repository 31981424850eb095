package presence_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
)

func TestStatsCache_SameReferenceSameYear_ReturnsCachedObject(t *testing.T) {
	cache := presence.NewStatsCache()
	r := newResource(presence.CountryFR, "2025-01-01", "2025-12-31")

	first := cache.Get(r, 2025)
	second := cache.Get(r, 2025)

	assert.Same(t, first, second)
	assert.Equal(t, 2025, first.Year)
	assert.Equal(t, "257", first.Days.String())
}

func TestStatsCache_YearChange_Recomputes(t *testing.T) {
	cache := presence.NewStatsCache()
	r := newResource(presence.CountryFR, "", "")

	s2025 := cache.Get(r, 2025)
	s2024 := cache.Get(r, 2024)

	assert.NotSame(t, s2025, s2024)
	assert.Equal(t, 2024, s2024.Year)

	// The 2024 entry replaced the 2025 one under the same reference
	assert.NotSame(t, s2025, cache.Get(r, 2025))
	assert.Equal(t, 1, cache.Len())
}

func TestStatsCache_DistinctReferences_EqualValues(t *testing.T) {
	cache := presence.NewStatsCache()
	r1 := newResource(presence.CountryPT, "2025-01-01", "2025-06-30")
	r2 := r1.Clone()

	s1 := cache.Get(r1, 2025)
	s2 := cache.Get(r2, 2025)

	assert.NotSame(t, s1, s2)
	assert.True(t, s1.Days.Equal(s2.Days))
	assert.True(t, s1.Cost.Equal(s2.Cost))
	runtime.KeepAlive(r1)
	runtime.KeepAlive(r2)
}

func TestStatsCache_EditProducesNewReference(t *testing.T) {
	// GIVEN: Cached stats for a resource
	cache := presence.NewStatsCache()
	r := newResource(presence.CountryFR, "2025-03-03", "2025-03-07")
	before := cache.Get(r, 2025)

	// WHEN: An override is applied through a patch
	edited := presence.ResourcePatch{
		Overrides: map[presence.Date]*presence.Presence{d("2025-03-04"): presence.PresencePtr(presence.Absent)},
	}.Apply(r)

	// THEN: the new reference misses and sees the edit, the old one is intact
	after := cache.Get(edited, 2025)
	assert.Equal(t, "5", before.Days.String())
	assert.Equal(t, "4", after.Days.String())
	assert.Same(t, before, cache.Get(r, 2025))
}

func TestStatsCache_CostDerivation(t *testing.T) {
	cache := presence.NewStatsCache()
	r := newResource(presence.CountryIN, "2025-04-01", "2025-09-30")

	s := cache.Get(r, 2025)

	assert.True(t, s.Cost.Equal(s.Days.Mul(r.Rate)))
}

func TestStatsCache_ReleasesUnreachableResources(t *testing.T) {
	cache := presence.NewStatsCache()
	func() {
		r := newResource(presence.CountryFR, "", "")
		cache.Get(r, 2025)
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return cache.Len() == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStatsCache_Watch(t *testing.T) {
	cache := presence.NewStatsCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *presence.Resource)
	out := cache.Watch(ctx, updates, 2025)

	r := newResource(presence.CountryFR, "2025-03-03", "2025-03-07")
	updates <- r
	got := <-out
	assert.Equal(t, "5", got.Days.String())

	r2 := presence.ResourcePatch{
		Overrides: map[presence.Date]*presence.Presence{d("2025-03-05"): presence.PresencePtr(presence.HalfDay)},
	}.Apply(r)
	updates <- r2
	got = <-out
	assert.Equal(t, "4.5", got.Days.String())

	close(updates)
	_, open := <-out
	require.False(t, open)
}
