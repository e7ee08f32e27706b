package models

import "time"

type Ticket struct {
	TicketID      string    `json:"ticket_id"`
	Num           string    `json:"num"`
	CompanyID     string    `json:"company_id,omitempty"`
	ServiceID     string    `json:"service_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Status        string    `json:"status"`
	IsUrgent      bool      `json:"is_urgent"`
	PostID        *string   `json:"post_id,omitempty"`
	PostName      *string   `json:"post_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// Decoration filled by queue and tracking reads.
	ServiceName string `json:"service_name,omitempty"`
	AvgMinutes  int    `json:"avg_minutes,omitempty"`
	WaitMinutes int    `json:"wait_minutes,omitempty"`
}

const (
	StatusPending    = "PENDING"
	StatusCall       = "CALL"
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
)

type TicketStats struct {
	Total    int `json:"total"`
	Finished int `json:"finished"`
	Pending  int `json:"pending"`
}
