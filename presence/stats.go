/*
stats.go - Identity-keyed cache of yearly statistics

CACHE KEY:
  The key is the *Resource pointer, not its contents. Resources are never
  mutated in place: an edit produces a new pointer, so a stale entry can
  never be served and no invalidation call exists. A hit also needs the
  cached year to match; asking for another year recomputes and overwrites.

LIFETIME:
  Entries are held through weak pointers. When the caller drops the last
  reference to a resource, a runtime cleanup removes its entry, so replaced
  and deleted resources do not accumulate.

CONCURRENCY:
  Safe for concurrent use. Two callers racing on the same key compute the
  same value; last write wins.
*/
package presence

import (
	"context"
	"runtime"
	"sync"
	"weak"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	statsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_stats_cache_hits_total",
		Help: "Yearly stats served from the identity cache",
	})
	statsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_stats_cache_misses_total",
		Help: "Yearly stats recomputed by the aggregator",
	})
)

// StatsCache memoizes Aggregate per resource reference and year.
// Construct one per application session and inject it where stats are read.
type StatsCache struct {
	entries sync.Map // weak.Pointer[Resource] -> *Stats
}

// NewStatsCache creates an empty cache.
func NewStatsCache() *StatsCache {
	return &StatsCache{}
}

// Get returns the stats of r for year. Repeated calls with the same pointer
// and year return the same *Stats.
func (c *StatsCache) Get(r *Resource, year int) *Stats {
	if r == nil {
		return &Stats{Year: year, Totals: zeroTotals()}
	}
	key := weak.Make(r)
	if v, ok := c.entries.Load(key); ok {
		if s := v.(*Stats); s.Year == year {
			statsCacheHits.Inc()
			return s
		}
	}

	statsCacheMisses.Inc()
	s := &Stats{Year: year, Totals: Aggregate(r, year)}
	if _, loaded := c.entries.Swap(key, s); !loaded {
		runtime.AddCleanup(r, c.evict, key)
	}
	return s
}

// Len returns the number of live entries.
func (c *StatsCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *StatsCache) evict(key weak.Pointer[Resource]) {
	c.entries.Delete(key)
}

// Watch turns a stream of resource snapshots into a stream of stats for
// year. The output channel is closed when updates is closed or ctx ends.
// Only the latest stats matter to a reactive consumer, so a slow reader
// sees the newest value rather than a backlog.
func (c *StatsCache) Watch(ctx context.Context, updates <-chan *Resource, year int) <-chan *Stats {
	out := make(chan *Stats, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-updates:
				if !ok {
					return
				}
				s := c.Get(r, year)
				select {
				case <-out:
				default:
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func zeroTotals() Totals {
	return Totals{Days: decimal.Zero, Cost: decimal.Zero}
}
