package holidays

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
)

const frBody = `[
	{"date":"2025-05-01","localName":"Fête du Travail","name":"Labour Day","countryCode":"FR","global":true,"types":["Public"]},
	{"date":"2025-01-01","localName":"Jour de l'an","name":"New Year's Day","countryCode":"FR","global":true,"types":["Public"]},
	{"date":"2025-12-26","localName":"Saint-Étienne","name":"St. Stephen's Day","countryCode":"FR","global":false,"types":["Public"]},
	{"date":"2025-04-21","localName":"Lundi de Pâques","name":"Easter Monday","countryCode":"FR","global":true,"types":["Public"]}
]`

func TestFetch(t *testing.T) {
	// GIVEN: An upstream answering for FR 2025
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/v3/PublicHolidays/2025/FR" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(frBody))
	}))
	defer srv.Close()
	c := NewClient(srv.URL + "/")

	// WHEN: Fetching twice
	dates, err := c.Fetch(context.Background(), presence.CountryFR, 2025)
	require.NoError(t, err)
	again, err := c.Fetch(context.Background(), presence.CountryFR, 2025)
	require.NoError(t, err)

	// THEN: National dates only, sorted, served from cache the second time
	assert.Equal(t, []presence.Date{"2025-01-01", "2025-04-21", "2025-05-01"}, dates)
	assert.Equal(t, dates, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_CacheExpires(t *testing.T) {
	// GIVEN: A client with a one hour cache and a controllable clock
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(frBody))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, WithCacheTTL(time.Hour))
	clock := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	// WHEN: Fetching, then again within the TTL
	_, err := c.Fetch(ctx, presence.CountryFR, 2025)
	require.NoError(t, err)
	clock = clock.Add(59 * time.Minute)
	_, err = c.Fetch(ctx, presence.CountryFR, 2025)
	require.NoError(t, err)

	// THEN: The upstream was called once
	assert.Equal(t, int32(1), calls.Load())

	// WHEN: The entry is older than the TTL
	clock = clock.Add(2 * time.Minute)
	dates, err := c.Fetch(ctx, presence.CountryFR, 2025)
	require.NoError(t, err)

	// THEN: The calendar is fetched again
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, dates, 3)
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/PublicHolidays/2025/PT":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/v3/PublicHolidays/2025/CO":
			w.Write([]byte(`{"oops"`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL)
	ctx := context.Background()

	_, err := c.Fetch(ctx, presence.CountryPT, 2025)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Fetch(ctx, presence.CountryCO, 2025)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Fetch(ctx, presence.CountryIN, 2025)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = c.Fetch(ctx, presence.Country("DE"), 2025)
	assert.ErrorIs(t, err, presence.ErrInvalidField)

	_, err = c.Fetch(ctx, presence.CountryFR, 12)
	assert.ErrorIs(t, err, presence.ErrInvalidField)
}

func TestFetch_CancelledContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, presence.CountryFR, 2025)

	assert.ErrorIs(t, err, context.Canceled)
}
