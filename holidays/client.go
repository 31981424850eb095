// Package holidays imports public holidays from a Nager.Date compatible API.
//
// The core engine never calls the network: the API layer fetches dates here
// and hands them to scenario.Manager.ApplyHolidays.
package holidays

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"github.com/warp/presence-engine/presence"
)

// DefaultBaseURL is the public Nager.Date instance.
const DefaultBaseURL = "https://date.nager.at"

var (
	// ErrUnavailable is returned when the upstream API fails or answers non-200.
	ErrUnavailable = errors.New("holiday source unavailable")

	// ErrNoData is returned when the upstream has no calendar for the country/year.
	ErrNoData = errors.New("no holiday data")
)

// publicHoliday is one entry of GET /api/v3/PublicHolidays/{year}/{country}.
type publicHoliday struct {
	Date        string   `json:"date"`
	LocalName   string   `json:"localName"`
	Name        string   `json:"name"`
	CountryCode string   `json:"countryCode"`
	Global      bool     `json:"global"`
	Types       []string `json:"types"`
}

// DefaultCacheTTL is how long a fetched calendar is served from cache.
const DefaultCacheTTL = 24 * time.Hour

// Client fetches and caches national public holidays.
type Client struct {
	baseURL string
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time
	http    *fasthttp.Client
	cache   sync.Map // "FR/2025" -> cacheEntry
}

type cacheEntry struct {
	dates     []presence.Date
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request when the context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCacheTTL sets how long a fetched calendar stays cached. Zero or less
// caches for the life of the client.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.ttl = d }
}

// NewClient creates a client for baseURL (DefaultBaseURL if empty).
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 5 * time.Second,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		http: &fasthttp.Client{
			Name:                "presence-engine",
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 90 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the sorted national holidays of country in year.
// Regional holidays (global=false) are skipped. A cached calendar older than
// the cache TTL is fetched again.
func (c *Client) Fetch(ctx context.Context, country presence.Country, year int) ([]presence.Date, error) {
	if !country.Valid() {
		return nil, presence.NewValidationError("country", presence.ErrInvalidField,
			fmt.Sprintf("%q is not one of %v", country, presence.Countries))
	}
	if year < 1900 || year > 2200 {
		return nil, presence.NewValidationError("year", presence.ErrInvalidField,
			fmt.Sprintf("%d is out of range", year))
	}
	key := string(country) + "/" + strconv.Itoa(year)
	if v, ok := c.cache.Load(key); ok {
		e := v.(cacheEntry)
		if c.ttl <= 0 || c.now().Sub(e.fetchedAt) < c.ttl {
			return e.dates, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list, err := c.fetch(ctx, country, year)
	if err != nil {
		return nil, err
	}

	var dates []presence.Date
	for _, h := range list {
		if !h.Global {
			continue
		}
		d, err := presence.ParseDate(h.Date)
		if err != nil || d.Year() != year {
			continue
		}
		dates = append(dates, d)
	}
	dates = presence.MergeDates(dates, nil)

	c.cache.Store(key, cacheEntry{dates: dates, fetchedAt: c.now()})
	return dates, nil
}

func (c *Client) fetch(ctx context.Context, country presence.Country, year int) ([]publicHoliday, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", c.baseURL, year, country))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound || status == fasthttp.StatusNoContent:
		return nil, fmt.Errorf("%w: %s %d", ErrNoData, country, year)
	case status != fasthttp.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	var list []publicHoliday
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	return list, nil
}
