package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ChannelRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewChannelRepository(dbConn *gorm.DB) *ChannelRepository {
	return &ChannelRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](database.GetCircuitBreakerSettings()),
	}
}

// Get returns the channel configuration, or (nil, nil) for channels the
// system has no configuration for; such traffic is recorded but never
// deduplicated, paged, or transcribed.
func (repo *ChannelRepository) Get(ctx context.Context, id string) (*Channel, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var channel Channel

		err := repo.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&channel).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return (*Channel)(nil), nil
		}

		if err != nil {
			logging.Logger.Error("[ChannelGet] Failed to fetch channel",
				zap.String("channel", id),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &channel, nil
	})
	if err != nil {
		return nil, err
	}

	channel, ok := result.(*Channel)
	if !ok {
		return nil, ErrInvalidCallRecordResult
	}

	return channel, nil
}

// ChannelGetter is what the directory fronts; tests substitute a fake.
type ChannelGetter interface {
	Get(ctx context.Context, id string) (*Channel, error)
}

type channelEntry struct {
	channel   *Channel
	fetchedAt time.Time
}

// ChannelDirectory is a TTL cache over channel configuration, passed by
// reference to every component that needs it. Negative lookups are cached
// too; unknown talkgroups are common on shared frequencies.
type ChannelDirectory struct {
	source ChannelGetter
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]channelEntry
}

func NewChannelDirectory(source ChannelGetter, ttl time.Duration) *ChannelDirectory {
	return &ChannelDirectory{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]channelEntry),
	}
}

func (d *ChannelDirectory) Get(ctx context.Context, id string) (*Channel, error) {
	d.mu.Lock()
	entry, ok := d.entries[id]
	d.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < d.ttl {
		return entry.channel, nil
	}

	channel, err := d.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.entries[id] = channelEntry{channel: channel, fetchedAt: time.Now()}
	d.mu.Unlock()

	return channel, nil
}

// Invalidate drops a cached entry, for callers that just changed the config.
func (d *ChannelDirectory) Invalidate(id string) {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
}
