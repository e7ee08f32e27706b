package store

import "errors"

var (
	ErrCompanyNotFound     = errors.New("company not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrPostNotFound        = errors.New("post not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUrgencyNotSupported = errors.New("service does not support urgency")
	ErrPageNameTaken       = errors.New("page name already taken")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)
