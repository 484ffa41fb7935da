package notify

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidRecipientSliceResult  = errors.New("invalid result type, it should be slice of Recipient")
	ErrInvalidPageNumberSliceResult = errors.New("invalid result type, it should be slice of PageNumber")
)

type MessageRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewMessageRepository(dbConn *gorm.DB) *MessageRepository {
	return &MessageRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](database.GetCircuitBreakerSettings()),
	}
}

func (repo *MessageRepository) Create(ctx context.Context, message *Message) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).Create(message).Error
		if err != nil {
			logging.Logger.Error("[MessageCreate] Failed to create message",
				zap.String("message_id", message.MessageID),
				zap.String("type", message.Type),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

type RecipientRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRecipientRepository(dbConn *gorm.DB) *RecipientRepository {
	return &RecipientRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](database.GetCircuitBreakerSettings()),
	}
}

// ListActive returns every active recipient; filtering by channel and test
// partition happens in memory, the table is small.
func (repo *RecipientRepository) ListActive(ctx context.Context) ([]Recipient, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var recipients []Recipient

		err := repo.DBConn.WithContext(ctx).
			Where("active = ?", true).
			Find(&recipients).Error
		if err != nil {
			logging.Logger.Error("[ListActive] Failed to list recipients",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return recipients, nil
	})
	if err != nil {
		return nil, err
	}

	recipients, ok := result.([]Recipient)
	if !ok {
		return nil, ErrInvalidRecipientSliceResult
	}

	return recipients, nil
}

// Activate flips a recipient to active by phone number, reporting whether a
// row matched.
func (repo *RecipientRepository) Activate(ctx context.Context, phone string) (bool, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		tx := repo.DBConn.WithContext(ctx).
			Model(&Recipient{}).
			Where("phone = ?", phone).
			Update("active", true)
		if tx.Error != nil {
			logging.Logger.Error("[Activate] Failed to activate recipient",
				zap.String("phone", phone),
				zap.String("error", tx.Error.Error()),
			)

			return nil, tx.Error
		}

		return tx.RowsAffected > 0, nil
	})
	if err != nil {
		return false, err
	}

	activated, _ := result.(bool)

	return activated, nil
}

type NumberRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewNumberRepository(dbConn *gorm.DB) *NumberRepository {
	return &NumberRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](database.GetCircuitBreakerSettings()),
	}
}

func (repo *NumberRepository) List(ctx context.Context) ([]PageNumber, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var numbers []PageNumber

		err := repo.DBConn.WithContext(ctx).Find(&numbers).Error
		if err != nil {
			logging.Logger.Error("[NumberList] Failed to list page numbers",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return numbers, nil
	})
	if err != nil {
		return nil, err
	}

	numbers, ok := result.([]PageNumber)
	if !ok {
		return nil, ErrInvalidPageNumberSliceResult
	}

	return numbers, nil
}
