package notify

import (
	"time"
)

const (
	MessageTypePage         = "page"
	MessageTypeTranscript   = "transcript"
	MessageTypeAnnouncement = "announcement"
	MessageTypeText         = "text"
	MessageTypeWelcome      = "welcome"
	MessageTypeAuthCode     = "auth-code"
)

// Message is one logical outbound notification: one row regardless of how
// many recipients it fanned out to. Per-recipient delivery is best-effort and
// not persisted.
type Message struct {
	MessageID        string     `gorm:"column:message_id;primaryKey" json:"message_id"`
	Type             string     `gorm:"column:type"                  json:"type"`
	Body             string     `gorm:"column:body"                  json:"body"`
	RecipientCount   int        `gorm:"column:recipient_count"       json:"recipient_count"`
	RelatedChannel   string     `gorm:"column:related_channel"       json:"related_channel,omitempty"`
	RelatedObjectKey string     `gorm:"column:related_object_key"    json:"related_object_key,omitempty"`
	IsTest           bool       `gorm:"column:is_test"               json:"is_test"`
	CreatedAt        *time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Recipient is one person who can receive pages. PersonID ties the row to the
// shift feed for the on-call banner; Channels holds subscribed channel ids and
// may contain "all".
type Recipient struct {
	ID              uint       `gorm:"column:id;primaryKey"     json:"id"`
	PersonID        string     `gorm:"column:person_id"         json:"person_id"`
	DisplayName     string     `gorm:"column:display_name"      json:"display_name"`
	Phone           string     `gorm:"column:phone;uniqueIndex" json:"phone"`
	Channels        []string   `gorm:"column:channels;type:jsonb;serializer:json"    json:"channels"`
	DutyGroups      []string   `gorm:"column:duty_groups;type:jsonb;serializer:json" json:"duty_groups"`
	PreferredGroup  *string    `gorm:"column:preferred_group"   json:"preferred_group,omitempty"`
	WantsTranscript bool       `gorm:"column:wants_transcript"  json:"wants_transcript"`
	WantsOnCall     bool       `gorm:"column:wants_on_call"     json:"wants_on_call"`
	IsTest          bool       `gorm:"column:is_test"           json:"is_test"`
	Active          bool       `gorm:"column:active"            json:"active"`
	CreatedAt       *time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Recipient) TableName() string {
	return "recipients"
}

// SubscribedTo reports whether the recipient receives traffic for the given
// channel. An empty channel means an account-wide message.
func (r *Recipient) SubscribedTo(channel string) bool {
	if channel == "" {
		return true
	}

	for _, subscribed := range r.Channels {
		if subscribed == "all" || subscribed == channel {
			return true
		}
	}

	return false
}

// PageNumber maps a duty group to the sender number its pages go out from, so
// recipients can whitelist one number per group on their phones.
type PageNumber struct {
	Group  string `gorm:"column:group_name;primaryKey" json:"group"`
	Number string `gorm:"column:number"                json:"number"`
}

func (PageNumber) TableName() string {
	return "page_numbers"
}
