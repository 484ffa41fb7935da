// Package redirect maps superseded object keys to the canonical keys that
// replaced them. Entries exist so a transcription callback that references a
// deleted duplicate can still find the surviving record; they expire on their
// own after the TTL, no garbage collection of ours.
package redirect

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// MaxHops bounds redirect-chain resolution. A chain longer than this (or a
// cycle) resolves to "no record found", never an infinite loop.
const MaxHops = 10

const keyPrefix = "redirect:"

type Store struct {
	Client         *redis.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	TTL            time.Duration
}

func NewStore(ctx context.Context) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Conf.RedisAddr,
		Password:     config.Conf.RedisPassword,
		DB:           config.Conf.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	err := client.Ping(ctx).Err()
	if err != nil {
		logging.Logger.Error("Failed to connect to Redis",
			zap.String("addr", config.Conf.RedisAddr),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to Redis", zap.String("addr", config.Conf.RedisAddr))

	return &Store{
		Client:         client,
		CircuitBreaker: newRedisCircuitBreaker(),
		TTL:            time.Duration(config.Conf.RedirectTTLMinutes) * time.Minute,
	}, nil
}

func newRedisCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "redis",
		Interval: time.Duration(config.Conf.RedisIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.RedisConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.RedisService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// Put records that oldKey was superseded by newKey.
func (s *Store) Put(ctx context.Context, oldKey, newKey string) error {
	_, err := s.CircuitBreaker.Execute(func() (any, error) {
		err := s.Client.Set(ctx, keyPrefix+oldKey, newKey, s.TTL).Err()
		if err != nil {
			logging.Logger.Error("Failed to write redirect entry",
				zap.String("old_key", oldKey),
				zap.String("new_key", newKey),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

// Get returns the replacement for a superseded key, or "" when no redirect
// exists (expired entries included).
func (s *Store) Get(ctx context.Context, oldKey string) (string, error) {
	result, err := s.CircuitBreaker.Execute(func() (any, error) {
		newKey, err := s.Client.Get(ctx, keyPrefix+oldKey).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}

		if err != nil {
			logging.Logger.Error("Failed to read redirect entry",
				zap.String("old_key", oldKey),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return newKey, nil
	})
	if err != nil {
		return "", err
	}

	newKey, _ := result.(string)

	return newKey, nil
}

func (s *Store) Close() error {
	return s.Client.Close()
}
