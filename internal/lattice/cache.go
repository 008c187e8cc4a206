package lattice

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache holds built translation sets keyed by their construction
// parameters. Sets are immutable, so repeats of one ensemble share a single
// reachability table and ladder.
type Cache struct {
	sets *cache.Cache
}

// NewCache creates a cache whose entries expire after ttl of disuse.
// A ttl of zero keeps entries forever.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{sets: cache.New(cache.NoExpiration, 0)}
	}
	return &Cache{sets: cache.New(ttl, ttl)}
}

func cacheKey(topo Topology, linkLength float64, metric Metric, rates RateModel) string {
	return fmt.Sprintf("%s|%g|%s|%s", topo.Name, linkLength, metric, rates.Key())
}

// Get returns the cached set for the parameters, building it on a miss.
func (c *Cache) Get(topo Topology, linkLength float64, metric Metric, rates RateModel) (*Set, error) {
	key := cacheKey(topo, linkLength, metric, rates)
	if v, ok := c.sets.Get(key); ok {
		return v.(*Set), nil
	}

	set, err := NewSet(topo, linkLength, WithMetric(metric), WithRates(rates))
	if err != nil {
		return nil, err
	}
	// Another goroutine may have won the race; keep whichever landed first.
	if err := c.sets.Add(key, set, cache.DefaultExpiration); err != nil {
		if v, ok := c.sets.Get(key); ok {
			return v.(*Set), nil
		}
	}
	return set, nil
}

// Len returns the number of cached sets.
func (c *Cache) Len() int {
	return c.sets.ItemCount()
}
