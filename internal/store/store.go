package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
)

type CreateTicketInput struct {
	PageName     string
	ServiceID    string
	CustomerName string
	Phone        string
	Urgent       bool
	CreatedAt    time.Time
}

type CallNextInput struct {
	CompanyID string
	PostID    string
	CalledAt  time.Time
}

type CreateServiceInput struct {
	CompanyID       string
	Name            string
	AvgMinutes      int
	SupportsUrgency bool
}

type LoginResult struct {
	Company models.Company
	Session models.Session
}

type Store interface {
	EnsureCompany(ctx context.Context, email, name string) (models.Company, error)
	GetCompanyByEmail(ctx context.Context, email string) (models.Company, error)
	GetCompanyByPageName(ctx context.Context, pageName string) (models.Company, error)
	SetCompanyPageName(ctx context.Context, companyID, pageName string) error

	RegisterCompany(ctx context.Context, email, name, password string) (LoginResult, error)
	Login(ctx context.Context, email, password string) (LoginResult, error)
	SSOLogin(ctx context.Context, email, name string) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)

	CreateService(ctx context.Context, input CreateServiceInput) (models.Service, error)
	ListServices(ctx context.Context, companyID string) ([]models.Service, error)
	DeleteService(ctx context.Context, companyID, serviceID string) error
	SetServiceUrgencySupport(ctx context.Context, companyID, serviceID string, supports bool) (models.Service, error)

	CreatePost(ctx context.Context, companyID, name string) (models.Post, error)
	ListPosts(ctx context.Context, companyID string) ([]models.Post, error)
	DeletePost(ctx context.Context, companyID, postID string) error

	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	ListQueue(ctx context.Context, companyID string) ([]models.Ticket, error)
	TrackTickets(ctx context.Context, nums []string) ([]models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	AdvanceTicket(ctx context.Context, companyID, ticketID, action string) (models.Ticket, error)
	SetTicketUrgency(ctx context.Context, companyID, ticketID string, urgent bool) (models.Ticket, error)
	ListFinishedTickets(ctx context.Context, companyID string, limit int) ([]models.Ticket, error)
	TicketStats(ctx context.Context, companyID string) (models.TicketStats, error)

	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	CompanyID string          `json:"company_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
