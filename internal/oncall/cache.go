package oncall

import (
	"context"
	"sync"
	"time"
)

// Cache fronts the shift feed with a TTL'd snapshot. Pages on the same
// incident cluster in time; one feed fetch serves all of them.
type Cache struct {
	source Feed
	ttl    time.Duration

	mu        sync.Mutex
	snapshot  []Shift
	fetchedAt time.Time
}

func NewCache(source Feed, ttl time.Duration) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
	}
}

func (c *Cache) Shifts(ctx context.Context) ([]Shift, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.snapshot, nil
	}

	shifts, err := c.source.Shifts(ctx)
	if err != nil {
		// Serve a stale snapshot over nothing while the feed is down.
		if c.snapshot != nil {
			return c.snapshot, nil
		}

		return nil, err
	}

	c.snapshot = shifts
	c.fetchedAt = time.Now()

	return c.snapshot, nil
}
