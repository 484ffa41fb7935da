package ingest

import (
	"strconv"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"github.com/goccy/go-json"
	"gorm.io/datatypes"
)

const (
	EventTypeCreated = "created"
	EventTypeRemoved = "removed"
)

// ObjectEvent is one object-store notification. Metadata values arrive as
// strings because they are recorder-supplied user metadata on the blob.
type ObjectEvent struct {
	EventType string        `json:"eventType"`
	ObjectKey string        `json:"objectKey"`
	Bucket    string        `json:"bucket"`
	EventTime string        `json:"eventTime"`
	Metadata  EventMetadata `json:"metadata"`
}

type EventMetadata struct {
	StartTime       string          `json:"startTime"`
	EndTime         string          `json:"endTime"`
	DurationSeconds string          `json:"durationSeconds"`
	TowerID         string          `json:"towerId"`
	Channel         string          `json:"channel"`
	Emergency       string          `json:"emergency"`
	ToneFlag        string          `json:"toneFlag"`
	SourceList      json.RawMessage `json:"sourceList"`
}

// record builds a call record from the event. Recorders in the field produce
// sloppy metadata; any field that fails to parse falls back to its zero value
// so one bad tag never loses the recording. Only the channel is mandatory.
func (e *ObjectEvent) record(now time.Time) *call.CallRecord {
	return &call.CallRecord{
		Channel:         e.Metadata.Channel,
		InsertedAt:      now.UnixMilli(),
		ObjectKey:       e.ObjectKey,
		StartTime:       parseEpochSeconds(e.Metadata.StartTime),
		EndTime:         parseEpochSeconds(e.Metadata.EndTime),
		DurationSeconds: parseEpochSeconds(e.Metadata.DurationSeconds),
		TowerID:         e.Metadata.TowerID,
		Emergency:       parseFlag(e.Metadata.Emergency),
		PageTone:        parseFlag(e.Metadata.ToneFlag),
		SourceList:      datatypes.JSON(e.Metadata.SourceList),
	}
}

// uploadLatencySeconds measures how long the recording took to reach the
// object store after the transmission ended. Returns a negative value when
// either timestamp is unusable.
func (e *ObjectEvent) uploadLatencySeconds() float64 {
	eventTime, err := time.Parse(time.RFC3339, e.EventTime)
	if err != nil {
		return -1
	}

	endTime := parseEpochSeconds(e.Metadata.EndTime)
	if endTime <= 0 {
		return -1
	}

	return float64(eventTime.Unix()) - endTime
}

func parseEpochSeconds(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}

	return parsed
}

func parseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "y", "yes":
		return true
	default:
		return false
	}
}
