package call

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
	ErrInvalidCallRecordResult      = errors.New("invalid result type, it should be pointer to CallRecord struct")
	ErrInvalidCallRecordSliceResult = errors.New("invalid result type, it should be slice of CallRecord")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Insert writes a freshly ingested record unconditionally.
func (repo *Repository) Insert(ctx context.Context, record *CallRecord) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).Create(record).Error
		if err != nil {
			logging.Logger.Error("[Insert] Failed to create call record",
				zap.String("channel", record.Channel),
				zap.String("object_key", record.ObjectKey),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return record, nil
	})

	return err
}

// GetByObjectKey looks a record up by its blob key. Missing records return
// (nil, nil): a record that was deduplicated away is an expected condition,
// not an error.
func (repo *Repository) GetByObjectKey(ctx context.Context, objectKey string) (*CallRecord, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var record CallRecord

		err := repo.DBConn.WithContext(ctx).
			Where("object_key = ?", objectKey).
			First(&record).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return (*CallRecord)(nil), nil
		}

		if err != nil {
			logging.Logger.Error("[GetByObjectKey] Failed to fetch call record",
				zap.String("object_key", objectKey),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, err
	}

	record, ok := result.(*CallRecord)
	if !ok {
		return nil, ErrInvalidCallRecordResult
	}

	return record, nil
}

// DeleteByObjectKey removes the record backing the given blob key. Deleting a
// key that no record references is a no-op; it reports whether a row was
// removed.
func (repo *Repository) DeleteByObjectKey(ctx context.Context, objectKey string) (bool, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		tx := repo.DBConn.WithContext(ctx).
			Where("object_key = ?", objectKey).
			Delete(&CallRecord{})
		if tx.Error != nil {
			logging.Logger.Error("[DeleteByObjectKey] Failed to delete call record",
				zap.String("object_key", objectKey),
				zap.String("error", tx.Error.Error()),
			)

			return nil, tx.Error
		}

		return tx.RowsAffected > 0, nil
	})
	if err != nil {
		return false, err
	}

	deleted, _ := result.(bool)

	return deleted, nil
}

// Delete removes a record by its primary key.
func (repo *Repository) Delete(ctx context.Context, record *CallRecord) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).
			Where("channel = ? AND inserted_at = ?", record.Channel, record.InsertedAt).
			Delete(&CallRecord{}).Error
		if err != nil {
			logging.Logger.Error("[Delete] Failed to delete call record",
				zap.String("channel", record.Channel),
				zap.Int64("inserted_at", record.InsertedAt),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

// WindowByStart returns records on a channel whose start_time falls inside
// [from, to]; the duplicate resolver's candidate query.
func (repo *Repository) WindowByStart(
	ctx context.Context,
	channel string,
	from, to float64,
) ([]CallRecord, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var records []CallRecord

		err := repo.DBConn.WithContext(ctx).
			Where("channel = ? AND start_time >= ? AND start_time <= ?", channel, from, to).
			Order("inserted_at ASC").
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[WindowByStart] Failed to query candidate records",
				zap.String("channel", channel),
				zap.Float64("from", from),
				zap.Float64("to", to),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]CallRecord)
	if !ok {
		return nil, ErrInvalidCallRecordSliceResult
	}

	return records, nil
}

// WindowByInsertedAt returns records on a channel whose inserted_at falls
// inside [from, to] millis; the result consumer's fallback lookup for jobs
// that carry no object key.
func (repo *Repository) WindowByInsertedAt(
	ctx context.Context,
	channel string,
	from, to int64,
) ([]CallRecord, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var records []CallRecord

		err := repo.DBConn.WithContext(ctx).
			Where("channel = ? AND inserted_at >= ? AND inserted_at <= ?", channel, from, to).
			Order("inserted_at ASC").
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[WindowByInsertedAt] Failed to query candidate records",
				zap.String("channel", channel),
				zap.Int64("from", from),
				zap.Int64("to", to),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]CallRecord)
	if !ok {
		return nil, ErrInvalidCallRecordSliceResult
	}

	return records, nil
}

// UpdateTranscript attaches transcript text to a record.
func (repo *Repository) UpdateTranscript(ctx context.Context, record *CallRecord, transcript string) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).
			Model(&CallRecord{}).
			Where("channel = ? AND inserted_at = ?", record.Channel, record.InsertedAt).
			Update("transcript", transcript).Error
		if err != nil {
			logging.Logger.Error("[UpdateTranscript] Failed to update transcript",
				zap.String("channel", record.Channel),
				zap.Int64("inserted_at", record.InsertedAt),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	record.Transcript = &transcript

	return nil
}

// ClaimPage sets page_sent on a record only when it is not already set, and
// reports whether this caller won the claim. The single-row conditional
// update is the page-once gate; the store has no cross-record transactions.
func (repo *Repository) ClaimPage(ctx context.Context, record *CallRecord) (bool, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		tx := repo.DBConn.WithContext(ctx).
			Model(&CallRecord{}).
			Where("channel = ? AND inserted_at = ? AND page_sent IS NOT TRUE",
				record.Channel, record.InsertedAt).
			Update("page_sent", true)
		if tx.Error != nil {
			logging.Logger.Error("[ClaimPage] Failed to claim page flag",
				zap.String("channel", record.Channel),
				zap.Int64("inserted_at", record.InsertedAt),
				zap.String("error", tx.Error.Error()),
			)

			return nil, tx.Error
		}

		return tx.RowsAffected > 0, nil
	})
	if err != nil {
		return false, err
	}

	claimed, _ := result.(bool)
	if claimed {
		sent := true
		record.PageSent = &sent
	}

	return claimed, nil
}

// MarkPageSent unconditionally records that a page was already produced for
// this logical transmission (inherited from a superseded duplicate).
func (repo *Repository) MarkPageSent(ctx context.Context, record *CallRecord) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).
			Model(&CallRecord{}).
			Where("channel = ? AND inserted_at = ?", record.Channel, record.InsertedAt).
			Update("page_sent", true).Error
		if err != nil {
			logging.Logger.Error("[MarkPageSent] Failed to set page flag",
				zap.String("channel", record.Channel),
				zap.Int64("inserted_at", record.InsertedAt),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	sent := true
	record.PageSent = &sent

	return nil
}
