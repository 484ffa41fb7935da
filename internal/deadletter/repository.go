package deadletter

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidEventDeadLetterResult      = errors.New("invalid result type, it should be pointer to EventDeadLetter")
	ErrInvalidEventDeadLetterSliceResult = errors.New("invalid result type, it should be slice of EventDeadLetter")
)

type DeadLetterRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *DeadLetterRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &DeadLetterRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

func (dlRepository *DeadLetterRepository) CreateEvent(
	ctx context.Context,
	topic, eventKey string,
	payload []byte,
	errMsg string,
) (*EventDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		now := time.Now()
		dlEvent := EventDeadLetter{
			Topic:       topic,
			EventKey:    eventKey,
			Payload:     payload,
			Error:       errMsg,
			Status:      StatusPending,
			LastRetryAt: &now,
		}

		var dbConn *gorm.DB

		// The consumer context may already be gone when the event is marked;
		// the dead letter write must still land.
		select {
		case <-ctx.Done():
			dbConn = dlRepository.DBConn
		default:
			dbConn = dlRepository.DBConn.WithContext(ctx)
		}

		err := dbConn.Where("topic = ? AND event_key = ?", topic, eventKey).
			Assign(map[string]interface{}{
				"payload":       payload,
				"error":         errMsg,
				"status":        StatusPending,
				"last_retry_at": &now,
			}).
			FirstOrCreate(&dlEvent).Error
		if err != nil {
			logging.Logger.Error("failed to create dead letter record",
				zap.String("topic", topic),
				zap.String("event_key", eventKey),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &dlEvent, nil
	})
	if err != nil {
		return nil, err
	}

	dlEvent, ok := result.(*EventDeadLetter)
	if !ok {
		return nil, ErrInvalidEventDeadLetterResult
	}

	return dlEvent, nil
}

func (dlRepository *DeadLetterRepository) GetPendingEvents(ctx context.Context) ([]EventDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []EventDeadLetter

		err := dlRepository.DBConn.WithContext(ctx).
			Where(
				"status = ? AND last_retry_at <= ?",
				StatusPending,
				time.Now().Add(-time.Duration(config.Conf.DeadLetterRetryDelay)*time.Minute),
			).
			Order("created_at ASC").
			Limit(config.Conf.DeadLetterLimit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Info("failed to fetch dead letter events", zap.String("error", err.Error()))
			return nil, err
		}

		return records, err
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]EventDeadLetter)
	if !ok {
		return nil, ErrInvalidEventDeadLetterSliceResult
	}

	return records, nil
}

func (dlRepository *DeadLetterRepository) UpdateStatus(
	ctx context.Context,
	dlEvent *EventDeadLetter,
	status string,
) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.
			WithContext(ctx).
			Model(dlEvent).
			Where("id = ?", dlEvent.ID).
			Update("status", status).Error
		if err != nil {
			return nil, err
		}

		return dlEvent, nil
	})

	return err
}

// RecordFailure bumps the retry count after a failed reprocess. Events that
// exhaust their retries get parked instead of re-queued.
func (dlRepository *DeadLetterRepository) RecordFailure(
	ctx context.Context,
	dlEvent *EventDeadLetter,
	errMsg string,
) error {
	status := StatusPending
	if dlEvent.RetryCount+1 >= config.Conf.DeadLetterMaxRetries {
		status = StatusParked
	}

	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": time.Now(),
			"status":        status,
			"error":         errMsg,
		}

		err := dlRepository.DBConn.WithContext(ctx).
			Model(dlEvent).
			Where("id = ?", dlEvent.ID).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("failed to record dl event failure",
				zap.Uint("id", dlEvent.ID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return dlEvent, nil
	})
	if err != nil {
		return err
	}

	if status == StatusParked {
		logging.Logger.Warn("dead letter event parked after exhausting retries",
			zap.Uint("id", dlEvent.ID),
			zap.String("topic", dlEvent.Topic),
			zap.String("event_key", dlEvent.EventKey),
		)
	}

	return nil
}

func (dlRepository *DeadLetterRepository) DeleteEvent(ctx context.Context, dlEvent *EventDeadLetter) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Where("id = ?", dlEvent.ID).
			Delete(dlEvent).
			Error

		return nil, err
	})

	return err
}
