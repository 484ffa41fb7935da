package deadletter

import (
	"time"

	"gorm.io/datatypes"
)

// EventDeadLetter parks a queue event that kept failing. One row per
// (topic, key); a newer failure for the same event overwrites the older one.
type EventDeadLetter struct {
	ID          uint           `gorm:"column:id;primaryKey"`
	Topic       string         `gorm:"column:topic;type:varchar(255);not null;uniqueIndex:idx_event_dl_topic_key"`
	EventKey    string         `gorm:"column:event_key;type:varchar(255);not null;uniqueIndex:idx_event_dl_topic_key"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb;not null"`
	Error       string         `gorm:"column:error;type:text;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null"`
	RetryCount  int            `gorm:"column:retry_count;type:int;default:0;not null"`
	LastRetryAt *time.Time     `gorm:"column:last_retry_at;type:timestamp"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	// StatusParked marks an event that exhausted its retries; it stays for
	// operator inspection and is never picked up again.
	StatusParked = "parked"
)

func (EventDeadLetter) TableName() string {
	return "event_dead_letters"
}
