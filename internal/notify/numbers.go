package notify

import (
	"context"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"go.uber.org/zap"
)

// NumberLister is what the cache fronts; tests substitute a fake.
type NumberLister interface {
	List(ctx context.Context) ([]PageNumber, error)
}

// NumberCache holds the duty-group to sender-number table with a TTL. A
// failed refresh falls back to the configured default number rather than
// blocking a page.
type NumberCache struct {
	source NumberLister
	ttl    time.Duration

	mu        sync.Mutex
	table     map[string]string
	fetchedAt time.Time
}

func NewNumberCache(source NumberLister, ttl time.Duration) *NumberCache {
	return &NumberCache{
		source: source,
		ttl:    ttl,
	}
}

// FromNumberFor picks the sender number for one recipient: the preferred
// group's number when set, else the sole duty group's number when the
// recipient belongs to exactly one, else the default.
func (c *NumberCache) FromNumberFor(ctx context.Context, recipient *Recipient) string {
	group := ""

	switch {
	case recipient.PreferredGroup != nil && *recipient.PreferredGroup != "":
		group = *recipient.PreferredGroup
	case len(recipient.DutyGroups) == 1:
		group = recipient.DutyGroups[0]
	}

	if group == "" {
		return config.Conf.PageFromNumber
	}

	table := c.load(ctx)

	number, ok := table[group]
	if !ok || number == "" {
		return config.Conf.PageFromNumber
	}

	return number
}

func (c *NumberCache) load(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.table
	}

	numbers, err := c.source.List(ctx)
	if err != nil {
		logging.Logger.Warn("Page number table unavailable, using default sender",
			zap.String("error", err.Error()),
		)

		if c.table != nil {
			return c.table
		}

		return map[string]string{}
	}

	table := make(map[string]string, len(numbers))
	for _, number := range numbers {
		table[number.Group] = number.Number
	}

	c.table = table
	c.fetchedAt = time.Now()

	return c.table
}
