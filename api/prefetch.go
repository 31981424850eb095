/*
prefetch.go - Background holiday prefetch

PURPOSE:
  Periodically warms the holiday source for every supported country, for
  the current and the next year, so holiday imports from the UI answer from
  cache instead of waiting on the upstream API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A failed country/year is logged and retried on the next tick
  - The client's cache entries expire (holidays.DefaultCacheTTL, 24h); at
    the 12h default interval every entry is re-requested at least once per
    TTL, so an expired calendar is refetched within one interval
  - Start after Stop starts a fresh loop

CONFIGURATION:
  - CheckInterval: How often to refresh (default: 12 hours)
  - Enabled: Whether the prefetcher is active (default: true)

USAGE:
  prefetcher := NewHolidayPrefetcher(client, logger)
  prefetcher.Start()
  // ... later
  prefetcher.Stop()

SEE ALSO:
  - holidays/client.go: Caching Nager.Date client
  - handlers.go: ApplyHolidays / GetHolidays endpoints
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/presence-engine/presence"
)

// HolidayPrefetcher keeps the holiday source warm.
type HolidayPrefetcher struct {
	Source        HolidaySource
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewHolidayPrefetcher creates a new prefetcher.
func NewHolidayPrefetcher(source HolidaySource, logger *slog.Logger) *HolidayPrefetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HolidayPrefetcher{
		Source:        source,
		Logger:        logger,
		CheckInterval: 12 * time.Hour,
		Enabled:       true,
		now:           time.Now,
	}
}

// Start begins the prefetcher.
func (p *HolidayPrefetcher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Enabled || p.Source == nil {
		p.Logger.Info("holiday prefetch disabled")
		return
	}
	if p.ticker != nil {
		return
	}

	p.ticker = time.NewTicker(p.CheckInterval)
	p.stop = make(chan struct{})
	p.wg.Add(1)

	go p.run(p.ticker, p.stop)

	p.Logger.Info("holiday prefetch started", "interval", p.CheckInterval)
}

// Stop stops the prefetcher and waits for an in-flight refresh.
func (p *HolidayPrefetcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stop)
		p.wg.Wait()
		p.ticker = nil
		p.Logger.Info("holiday prefetch stopped")
	}
}

func (p *HolidayPrefetcher) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer p.wg.Done()

	// Run immediately on start
	p.RunNow()

	for {
		select {
		case <-ticker.C:
			p.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow refreshes every country for this year and next. It returns the
// number of country/years that failed.
func (p *HolidayPrefetcher) RunNow() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	year := p.now().Year()
	failed := 0
	for _, country := range presence.Countries {
		for _, y := range []int{year, year + 1} {
			dates, err := p.Source.Fetch(ctx, country, y)
			if err != nil {
				failed++
				p.Logger.Warn("holiday prefetch failed", "country", country, "year", y, "error", err)
				continue
			}
			p.Logger.Debug("holidays prefetched", "country", country, "year", y, "count", len(dates))
		}
	}
	return failed
}

// NextRunTime returns when the next scheduled refresh will occur.
func (p *HolidayPrefetcher) NextRunTime() time.Time {
	return p.now().Add(p.CheckInterval)
}
