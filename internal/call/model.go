package call

import (
	"time"

	"gorm.io/datatypes"
)

// CallRecord is one physical recording of a radio transmission as captured by
// a single tower. Several towers may produce near-identical records for the
// same logical transmission; duplicate resolution keeps exactly one.
//
// Identity is (channel, inserted_at). Start/end times are epoch seconds with
// fractional precision, matching the recorder metadata.
type CallRecord struct {
	Channel         string         `gorm:"column:channel;primaryKey"          json:"channel"`
	InsertedAt      int64          `gorm:"column:inserted_at;primaryKey"      json:"inserted_at"`
	ObjectKey       string         `gorm:"column:object_key"                  json:"object_key"`
	StartTime       float64        `gorm:"column:start_time"                  json:"start_time"`
	EndTime         float64        `gorm:"column:end_time"                    json:"end_time"`
	DurationSeconds float64        `gorm:"column:duration_seconds"            json:"duration_seconds"`
	TowerID         string         `gorm:"column:tower_id"                    json:"tower_id"`
	Emergency       bool           `gorm:"column:emergency"                   json:"emergency"`
	PageTone        bool           `gorm:"column:page_tone"                   json:"page_tone"`
	Transcript      *string        `gorm:"column:transcript"                  json:"transcript,omitempty"`
	PageSent        *bool          `gorm:"column:page_sent"                   json:"page_sent,omitempty"`
	SourceList      datatypes.JSON `gorm:"column:source_list;type:jsonb"      json:"source_list,omitempty"`
	CreatedAt       *time.Time     `gorm:"column:created_at;autoCreateTime"   json:"created_at"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// HasPageSent reports whether the record has already been paged for.
func (r *CallRecord) HasPageSent() bool {
	return r.PageSent != nil && *r.PageSent
}

// TranscriptText returns the transcript or "" when none is attached.
func (r *CallRecord) TranscriptText() string {
	if r.Transcript == nil {
		return ""
	}

	return *r.Transcript
}

// Channel is the per-talkgroup configuration: whether several redundant
// receivers feed it (so ingest must deduplicate), and which events warrant a
// page or a transcript.
type Channel struct {
	ID              string     `gorm:"column:id;primaryKey" json:"id"`
	Label           string     `gorm:"column:label"         json:"label"`
	MultiReceiver   bool       `gorm:"column:multi_receiver"   json:"multi_receiver"`
	PageOnTone      bool       `gorm:"column:page_on_tone"     json:"page_on_tone"`
	PageOnEmergency bool       `gorm:"column:page_on_emergency" json:"page_on_emergency"`
	Transcribe      bool       `gorm:"column:transcribe"       json:"transcribe"`
	DutyGroups      []string   `gorm:"column:duty_groups;type:jsonb;serializer:json" json:"duty_groups,omitempty"`
	CreatedAt       *time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Channel) TableName() string {
	return "channels"
}

// PageWanted reports whether this record should trigger a page on its channel.
func (c *Channel) PageWanted(rec *CallRecord) bool {
	if c == nil {
		return false
	}

	return (rec.PageTone && c.PageOnTone) || (rec.Emergency && c.PageOnEmergency)
}

// TranscriptWanted reports whether a transcript should be produced for the
// record: pageable traffic is always transcribed, other traffic only when the
// channel opts in.
func (c *Channel) TranscriptWanted(rec *CallRecord) bool {
	if c == nil {
		return false
	}

	return c.Transcribe && (c.PageWanted(rec) || rec.Emergency)
}
