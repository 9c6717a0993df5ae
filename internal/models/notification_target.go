package models

import (
	"strings"

	"gorm.io/gorm"
)

// NotificationType identifies the delivery mechanism for a target.
type NotificationType string

const (
	// NotifyDiscord posts a Discord webhook embed.
	NotifyDiscord NotificationType = "discord"
	// NotifyGotify posts a Gotify message.
	NotifyGotify NotificationType = "gotify"
	// NotifyWebhook posts a generic JSON payload.
	NotifyWebhook NotificationType = "webhook"
)

// IsValid reports whether the type is a known value.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotifyDiscord, NotifyGotify, NotifyWebhook:
		return true
	}
	return false
}

// NotificationEvent is a job lifecycle event a target can subscribe to.
type NotificationEvent string

const (
	// NotifyOnQueued fires when a job is enqueued.
	NotifyOnQueued NotificationEvent = "queued"
	// NotifyOnCompleted fires when a job commits successfully.
	NotifyOnCompleted NotificationEvent = "completed"
	// NotifyOnFailed fires when a job fails.
	NotifyOnFailed NotificationEvent = "failed"
)

// NotificationTarget is a configured notification endpoint.
type NotificationTarget struct {
	BaseModel

	Name        string           `gorm:"not null;size:255" json:"name"`
	TargetType  NotificationType `gorm:"not null;size:20" json:"target_type"`
	EndpointURL string           `gorm:"not null;size:2048" json:"endpoint_url"`
	AuthToken   string           `gorm:"size:512" json:"auth_token,omitempty"`

	// Events is a comma-separated subset of {queued, completed, failed}.
	Events string `gorm:"size:64" json:"events"`

	Enabled bool `gorm:"default:true" json:"enabled"`
}

// TableName returns the table name for NotificationTarget.
func (NotificationTarget) TableName() string {
	return "notification_targets"
}

// SubscribedTo reports whether this target wants the given event.
func (n *NotificationTarget) SubscribedTo(event NotificationEvent) bool {
	for _, e := range strings.Split(n.Events, ",") {
		if strings.TrimSpace(e) == string(event) {
			return true
		}
	}
	return false
}

// Validate performs basic validation on the target.
func (n *NotificationTarget) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return ErrNameRequired
	}
	if !n.TargetType.IsValid() {
		return ErrUnknownNotificationType
	}
	if strings.TrimSpace(n.EndpointURL) == "" {
		return ErrEndpointURLRequired
	}
	for _, e := range strings.Split(n.Events, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		switch NotificationEvent(e) {
		case NotifyOnQueued, NotifyOnCompleted, NotifyOnFailed:
		default:
			return ErrUnknownNotificationEvent
		}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the target.
func (n *NotificationTarget) BeforeCreate(tx *gorm.DB) error {
	if err := n.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return n.Validate()
}
