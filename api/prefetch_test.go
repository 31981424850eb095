package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolidayPrefetcher_RunNow(t *testing.T) {
	// GIVEN: A source that only knows FR
	source := &fakeHolidays{}
	p := NewHolidayPrefetcher(source, nil)

	// WHEN: Refreshing
	failed := p.RunNow()

	// THEN: Every country is tried for two years, the other three fail
	assert.Equal(t, 8, source.calls)
	assert.Equal(t, 6, failed)
}

func TestHolidayPrefetcher_StartStop(t *testing.T) {
	source := &fakeHolidays{}
	p := NewHolidayPrefetcher(source, nil)
	p.CheckInterval = time.Hour

	p.Start()
	p.Start() // second start is a no-op
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.ticker != nil
	}, time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()

	// The immediate refresh ran before Stop returned
	assert.Equal(t, 8, source.calls)
}

func TestHolidayPrefetcher_Restart(t *testing.T) {
	// GIVEN: A prefetcher that was started and stopped
	source := &fakeHolidays{}
	p := NewHolidayPrefetcher(source, nil)
	p.CheckInterval = time.Hour
	p.Start()
	p.Stop()
	require.Equal(t, 8, source.calls)

	// WHEN: Starting and stopping it again
	assert.NotPanics(t, func() {
		p.Start()
		p.Stop()
	})

	// THEN: The second loop ran its immediate refresh too
	assert.Equal(t, 16, source.calls)
}

func TestHolidayPrefetcher_Disabled(t *testing.T) {
	source := &fakeHolidays{}
	p := NewHolidayPrefetcher(source, nil)
	p.Enabled = false

	p.Start()
	p.Stop()
	assert.Zero(t, source.calls)
}

func TestHolidayPrefetcher_NextRunTime(t *testing.T) {
	p := NewHolidayPrefetcher(nil, nil)
	base := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	assert.Equal(t, base.Add(12*time.Hour), p.NextRunTime())
}
