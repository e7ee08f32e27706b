package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/hub"
	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store         store.Store
	hub           *hub.Hub
	baseURL       string
	finishedLimit int
}

type Options struct {
	BaseURL       string
	FinishedLimit int
}

func NewHandler(st store.Store, h *hub.Hub, options Options) *Handler {
	limit := options.FinishedLimit
	if limit <= 0 {
		limit = 10
	}
	baseURL := strings.TrimSuffix(options.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Handler{
		store:         st,
		hub:           h,
		baseURL:       baseURL,
		finishedLimit: limit,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/sso", h.handleSSOLogin)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/company/page-name", h.handlePageName)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/services/", h.handleServiceByID)
	mux.HandleFunc("/api/posts", h.handlePosts)
	mux.HandleFunc("/api/posts/", h.handlePostByID)
	mux.HandleFunc("/api/tickets", h.handleCreateTicket)
	mux.HandleFunc("/api/tickets/track", h.handleTrackTickets)
	mux.HandleFunc("/api/tickets/finished", h.handleFinishedTickets)
	mux.HandleFunc("/api/tickets/", h.handleTicketByID)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/page/", h.handlePublicPage)
	mux.HandleFunc("/api/qr/", h.handleQRTarget)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTicketRequest struct {
	PageName     string `json:"page_name"`
	ServiceID    string `json:"service_id"`
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Urgent       bool   `json:"urgent"`
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.PageName = strings.TrimSpace(req.PageName)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.PageName == "" || req.ServiceID == "" || req.Phone == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "page_name, service_id, and phone are required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	ticket, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
		PageName:     req.PageName,
		ServiceID:    req.ServiceID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Urgent:       req.Urgent,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	h.publish("ticket.created", ticket)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTrackTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var nums []string
	for _, raw := range strings.Split(r.URL.Query().Get("nums"), ",") {
		if num := strings.TrimSpace(raw); num != "" {
			nums = append(nums, num)
		}
	}
	if len(nums) == 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "nums is required")
		return
	}

	tickets, err := h.store.TrackTickets(r.Context(), nums)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	tickets, err := h.store.ListQueue(r.Context(), company.CompanyID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleFinishedTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	tickets, err := h.store.ListFinishedTickets(r.Context(), company.CompanyID, h.finishedLimit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	stats, err := h.store.TicketStats(r.Context(), company.CompanyID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleTicketByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTicketAction(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "urgency":
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTicketUrgency(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}
	if action != "start" && action != "finish" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ticket, err := h.store.AdvanceTicket(r.Context(), company.CompanyID, ticketID, action)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	h.publish(store.EventForAction(action), ticket)
	writeJSON(w, http.StatusOK, ticket)
}

type urgencyRequest struct {
	Urgent bool `json:"urgent"`
}

func (h *Handler) handleTicketUrgency(w http.ResponseWriter, r *http.Request, ticketID string) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	var req urgencyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	ticket, err := h.store.SetTicketUrgency(r.Context(), company.CompanyID, ticketID, req.Urgent)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	h.publish("ticket.urgency_changed", ticket)
	writeJSON(w, http.StatusOK, ticket)
}

type publicPageResponse struct {
	CompanyName string           `json:"company_name"`
	PageName    string           `json:"page_name"`
	Services    []models.Service `json:"services"`
}

func (h *Handler) handlePublicPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/page/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "services" || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	company, err := h.store.GetCompanyByPageName(r.Context(), parts[0])
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	services, err := h.store.ListServices(r.Context(), company.CompanyID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, publicPageResponse{
		CompanyName: company.Name,
		PageName:    company.PageName,
		Services:    services,
	})
}

type qrTargetResponse struct {
	PageName string `json:"page_name"`
	URL      string `json:"url"`
}

// handleQRTarget returns the URL a QR code for the page should encode. The
// PNG itself is rendered by the frontend.
func (h *Handler) handleQRTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	pageName := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/qr/"), "/")
	if pageName == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	company, err := h.store.GetCompanyByPageName(r.Context(), pageName)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, qrTargetResponse{
		PageName: company.PageName,
		URL:      h.baseURL + "/page/" + company.PageName,
	})
}

type queueEvent struct {
	Type   string        `json:"type"`
	Ticket models.Ticket `json:"ticket"`
}

func (h *Handler) publish(eventType string, ticket models.Ticket) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(queueEvent{Type: eventType, Ticket: ticket})
	if err != nil {
		return
	}
	h.hub.Broadcast(payload, hub.Subscription{CompanyID: ticket.CompanyID, ServiceID: ticket.ServiceID})
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrCompanyNotFound):
		return http.StatusNotFound, "company_not_found", "company not found"
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrPostNotFound):
		return http.StatusNotFound, "post_not_found", "post not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidPhone):
		return http.StatusBadRequest, "invalid_phone", "phone must be +221 followed by nine digits"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "ticket status does not allow this action"
	case errors.Is(err, store.ErrUrgencyNotSupported):
		return http.StatusConflict, "urgency_not_supported", "service does not support urgency"
	case errors.Is(err, store.ErrPageNameTaken):
		return http.StatusConflict, "page_name_taken", "page name already taken"
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
