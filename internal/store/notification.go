package store

import "time"

const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Notification is the delivery record written by the notify worker for each
// outbox event it turns into a customer message.
type Notification struct {
	NotificationID string    `json:"notification_id"`
	CompanyID      string    `json:"company_id"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"body"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
