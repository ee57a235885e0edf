// Package forecastcache memoizes multi-horizon forecast sets per
// (location, hour bucket) and collapses concurrent computations for the
// same key into one.
package forecastcache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trafficsense/forecast/core/logger"
	"github.com/trafficsense/forecast/core/model"
)

// Config defines cache parameters loaded from configuration.
type Config struct {
	// TTLMinutes expires entries independently of the hour-bucket key, so a
	// forecast generated near the end of a bucket refreshes before the next
	// boundary.
	TTLMinutes int `json:"ttl_minutes"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TTLMinutes == 0 {
		c.TTLMinutes = 30
	}
}

// ComputeFunc produces a forecast set on cache miss.
type ComputeFunc func(ctx context.Context) (model.ForecastSet, error)

type key struct {
	locationID string
	bucket     int64
}

// entry goes through two states: computing (done open) and complete (done
// closed with set/err recorded). Failed computations are removed so they
// never poison the cache for the remainder of the TTL.
type entry struct {
	done     chan struct{}
	set      model.ForecastSet
	err      error
	storedAt time.Time
}

// Cache is a TTL'd single-flight memoizer. A nil *Cache is valid and
// degrades every call to a direct computation.
type Cache struct {
	ttl   time.Duration
	clock clockwork.Clock
	log   logger.Logger

	mu      sync.Mutex
	entries map[key]*entry
}

// New creates a Cache. A nil clock falls back to the real clock.
func New(cfg Config, log logger.Logger, clock clockwork.Clock) *Cache {
	cfg.SetDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		ttl:     time.Duration(cfg.TTLMinutes) * time.Minute,
		clock:   clock,
		log:     log,
		entries: make(map[key]*entry),
	}
}

// GetOrCompute returns the cached set for (locationID, asOf hour bucket) or
// runs fn exactly once for all concurrent callers of the same key. The
// second return reports a cache hit. Errors from fn propagate to every
// waiting caller but are never cached.
func (c *Cache) GetOrCompute(ctx context.Context, locationID string, asOf time.Time, fn ComputeFunc) (model.ForecastSet, bool, error) {
	if c == nil {
		// Cache unavailability is a performance degradation, not a failure.
		set, err := fn(ctx)
		return set, false, err
	}

	k := key{locationID: locationID, bucket: asOf.UTC().Truncate(time.Hour).Unix()}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		select {
		case <-e.done:
			if e.err == nil && c.clock.Now().Sub(e.storedAt) < c.ttl {
				c.mu.Unlock()
				return e.set, true, nil
			}
			// Expired: fall through and become the new leader.
		default:
			// Someone else is computing; wait for their result.
			c.mu.Unlock()
			return c.wait(ctx, e)
		}
	}
	e := &entry{done: make(chan struct{})}
	c.entries[k] = e
	c.evictExpiredLocked()
	c.mu.Unlock()

	set, err := fn(ctx)

	c.mu.Lock()
	e.set = set
	e.err = err
	e.storedAt = c.clock.Now()
	if err != nil {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	close(e.done)

	return set, false, err
}

// wait blocks until the in-flight leader finishes or the caller's context
// expires. Followers share the leader's result, success or failure.
func (c *Cache) wait(ctx context.Context, e *entry) (model.ForecastSet, bool, error) {
	select {
	case <-e.done:
		if e.err != nil {
			return model.ForecastSet{}, false, e.err
		}
		return e.set, true, nil
	case <-ctx.Done():
		return model.ForecastSet{}, false, ctx.Err()
	}
}

// Len reports the number of resident entries, expired or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops every bucket for the location, e.g. after a model swap.
func (c *Cache) Invalidate(locationID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.locationID == locationID {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) evictExpiredLocked() {
	now := c.clock.Now()
	for k, e := range c.entries {
		select {
		case <-e.done:
			if now.Sub(e.storedAt) >= c.ttl {
				delete(c.entries, k)
			}
		default:
		}
	}
}
