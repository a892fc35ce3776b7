package availability

import (
	"context"
	"sync"
	"time"
)

// Cache stores computed slot lists per (company, date, service). Invalidate
// drops every service for a company and date and bumps its generation, so a
// list computed before the invalidation can no longer be stored.
type Cache interface {
	Get(ctx context.Context, companyID, date, serviceID string) (Lookup, error)
	// Set stores slots computed under generation gen. It reports false and
	// stores nothing when the generation moved on in the meantime.
	Set(ctx context.Context, companyID, date, serviceID string, gen int64, slots []string) (bool, error)
	Invalidate(ctx context.Context, companyID, date string) error
}

// Lookup is a cache read. Generation is valid on a miss too and must be
// passed back to Set.
type Lookup struct {
	Slots      []string
	Hit        bool
	Generation int64
}

// MemoryCache is a process-local Cache with a fixed TTL. An invalidated date
// keeps an empty entry carrying the new generation until the TTL runs out.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	expires time.Time
	gen     int64
	slots   map[string][]string
}

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, entries: map[string]memoryEntry{}}
}

// liveLocked returns the unexpired entry for key, dropping an expired one.
func (c *MemoryCache) liveLocked(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) Get(_ context.Context, companyID, date, serviceID string) (Lookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(cacheKey(companyID, date))
	if !ok {
		return Lookup{}, nil
	}
	slots, hit := e.slots[serviceField(serviceID)]
	if !hit {
		return Lookup{Generation: e.gen}, nil
	}
	return Lookup{Slots: append([]string(nil), slots...), Hit: true, Generation: e.gen}, nil
}

func (c *MemoryCache) Set(_ context.Context, companyID, date, serviceID string, gen int64, slots []string) (bool, error) {
	if c.ttl <= 0 {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(companyID, date)
	e, ok := c.liveLocked(key)
	if e.gen != gen {
		return false, nil
	}
	if !ok {
		e = memoryEntry{expires: c.now().Add(c.ttl), slots: map[string][]string{}}
	}
	e.slots[serviceField(serviceID)] = append([]string(nil), slots...)
	c.entries[key] = e
	return true, nil
}

func (c *MemoryCache) Invalidate(_ context.Context, companyID, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(companyID, date)
	if c.ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	e, _ := c.liveLocked(key)
	c.entries[key] = memoryEntry{expires: c.now().Add(c.ttl), gen: e.gen + 1, slots: map[string][]string{}}
	return nil
}

func cacheKey(companyID, date string) string {
	return "avail:" + companyID + ":" + date
}

func serviceField(serviceID string) string {
	if serviceID == "" {
		return "-"
	}
	return serviceID
}
