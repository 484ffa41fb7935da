package deadletter

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reprocessor replays one parked event through the same handler that consumed
// it originally; the app wires it to the per-topic router.
type Reprocessor func(ctx context.Context, topic string, payload []byte) error

type DeadLetterService struct {
	DLRepository *DeadLetterRepository
	Reprocess    Reprocessor
}

func NewService(dbConn *gorm.DB, reprocess Reprocessor) *DeadLetterService {
	return &DeadLetterService{
		DLRepository: NewRepository(dbConn),
		Reprocess:    reprocess,
	}
}

// MarkEvent records a failed event for later replay.
func (dlService *DeadLetterService) MarkEvent(
	ctx context.Context,
	topic, eventKey string,
	payload []byte,
	errMsg string,
) error {
	_, err := dlService.DLRepository.CreateEvent(ctx, topic, eventKey, payload, errMsg)
	if err != nil {
		return err
	}

	logging.Logger.Info("mark event as dead letter",
		zap.String("topic", topic),
		zap.String("event_key", eventKey),
	)

	return nil
}

// ProcessDeadLetterEvent replays one pending event. Success removes the row;
// failure bumps the retry count and eventually parks it.
func (dlService *DeadLetterService) ProcessDeadLetterEvent(ctx context.Context, dlEvent *EventDeadLetter) {
	err := dlService.DLRepository.UpdateStatus(ctx, dlEvent, StatusInProgress)
	if err != nil {
		logging.Logger.Info("failed to update dl event to in progress", zap.Uint("id", dlEvent.ID))
		return
	}

	err = dlService.Reprocess(ctx, dlEvent.Topic, dlEvent.Payload)
	if err != nil {
		logging.Logger.Error("failed to reprocess dead letter event",
			zap.Uint("id", dlEvent.ID),
			zap.String("topic", dlEvent.Topic),
			zap.String("event_key", dlEvent.EventKey),
			zap.String("error", err.Error()),
		)
		_ = dlService.DLRepository.RecordFailure(ctx, dlEvent, err.Error())

		return
	}

	logging.Logger.Info("dl event processed successfully",
		zap.Uint("id", dlEvent.ID),
		zap.String("topic", dlEvent.Topic),
		zap.String("event_key", dlEvent.EventKey),
	)

	err = dlService.DLRepository.DeleteEvent(ctx, dlEvent)
	if err != nil {
		logging.Logger.Info("failed to delete processed dl event",
			zap.Uint("id", dlEvent.ID),
			zap.String("error", err.Error()),
		)
	}
}
