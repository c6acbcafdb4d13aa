package domain

import "time"

// DeliveryEventType enumerates the engagement events recorded for a
// sending account.
type DeliveryEventType string

const (
	EventDelivered DeliveryEventType = "delivered"
	EventOpened    DeliveryEventType = "opened"
	EventClicked   DeliveryEventType = "clicked"
	EventReplied   DeliveryEventType = "replied"
	EventBounce    DeliveryEventType = "bounce"
	EventComplaint DeliveryEventType = "complaint"
)

// ValidEventType reports whether t is one of the recognized event types.
func ValidEventType(t DeliveryEventType) bool {
	switch t {
	case EventDelivered, EventOpened, EventClicked, EventReplied, EventBounce, EventComplaint:
		return true
	}
	return false
}

// DeliveryEvent is an append-only fact row. Events are never updated or
// deduplicated; all account rates are derived by replaying them.
type DeliveryEvent struct {
	ID        string            `json:"id" db:"id"`
	AccountID string            `json:"account_id" db:"account_id"`
	EmailID   string            `json:"email_id,omitempty" db:"email_id"`
	EventType DeliveryEventType `json:"event_type" db:"event_type"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// EmailStatus is the lifecycle state of one outbound message.
type EmailStatus string

const (
	EmailSent       EmailStatus = "sent"
	EmailOpened     EmailStatus = "opened"
	EmailClicked    EmailStatus = "clicked"
	EmailReplied    EmailStatus = "replied"
	EmailBounced    EmailStatus = "bounced"
	EmailComplained EmailStatus = "complained"
)

// Email is a single outbound message. Its status is advanced by incoming
// delivery events; each transition stamps the matching timestamp column.
type Email struct {
	ID             string      `json:"id" db:"id"`
	AccountID      string      `json:"account_id" db:"account_id"`
	Status         EmailStatus `json:"status" db:"status"`
	DeliveryStatus string      `json:"delivery_status,omitempty" db:"delivery_status"`
	SentAt         *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	OpenedAt       *time.Time  `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt      *time.Time  `json:"clicked_at,omitempty" db:"clicked_at"`
	RepliedAt      *time.Time  `json:"replied_at,omitempty" db:"replied_at"`
	BouncedAt      *time.Time  `json:"bounced_at,omitempty" db:"bounced_at"`
	ComplainedAt   *time.Time  `json:"complained_at,omitempty" db:"complained_at"`
}

// StatusForEvent maps an incoming event type to the email status it
// implies. The second return is false for event types that do not
// advance email state.
func StatusForEvent(t DeliveryEventType) (EmailStatus, bool) {
	switch t {
	case EventDelivered:
		return EmailSent, true
	case EventOpened:
		return EmailOpened, true
	case EventClicked:
		return EmailClicked, true
	case EventReplied:
		return EmailReplied, true
	case EventBounce:
		return EmailBounced, true
	case EventComplaint:
		return EmailComplained, true
	}
	return "", false
}
