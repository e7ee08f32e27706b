package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"
)

type loginResponse struct {
	SessionID string         `json:"session_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	Company   models.Company `json:"company"`
}

func loginResponseFrom(result store.LoginResult) loginResponse {
	return loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt,
		Company:   result.Company,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.store.RegisterCompany(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponseFrom(result))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.store.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponseFrom(result))
}

type ssoLoginRequest struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// handleSSOLogin provisions the company on first sight, mirroring the
// create-if-absent onboarding of the identity provider callback.
func (h *Handler) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ssoLoginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	result, err := h.store.SSOLogin(r.Context(), req.Email, req.Name)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponseFrom(result))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, company)
}

type pageNameRequest struct {
	PageName string `json:"page_name"`
}

func (h *Handler) handlePageName(w http.ResponseWriter, r *http.Request) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, pageNameRequest{PageName: company.PageName})
	case http.MethodPut:
		var req pageNameRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.PageName = strings.TrimSpace(req.PageName)
		if req.PageName == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "page_name is required")
			return
		}
		if err := h.store.SetCompanyPageName(r.Context(), company.CompanyID, req.PageName); err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, pageNameRequest{PageName: req.PageName})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createServiceRequest struct {
	Name            string `json:"name"`
	AvgMinutes      int    `json:"avg_minutes"`
	SupportsUrgency bool   `json:"supports_urgency"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		services, err := h.store.ListServices(r.Context(), company.CompanyID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		var req createServiceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		if req.AvgMinutes < 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "avg_minutes must be positive")
			return
		}
		if req.AvgMinutes == 0 {
			req.AvgMinutes = 10
		}

		service, err := h.store.CreateService(r.Context(), store.CreateServiceInput{
			CompanyID:       company.CompanyID,
			Name:            req.Name,
			AvgMinutes:      req.AvgMinutes,
			SupportsUrgency: req.SupportsUrgency,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, service)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type serviceUrgencyRequest struct {
	SupportsUrgency bool `json:"supports_urgency"`
}

func (h *Handler) handleServiceByID(w http.ResponseWriter, r *http.Request) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/services/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	serviceID := parts[0]
	if !isValidUUID(serviceID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := h.store.DeleteService(r.Context(), company.CompanyID, serviceID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "urgency" && r.Method == http.MethodPatch:
		var req serviceUrgencyRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		service, err := h.store.SetServiceUrgencySupport(r.Context(), company.CompanyID, serviceID, req.SupportsUrgency)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, service)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type createPostRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handlePosts(w http.ResponseWriter, r *http.Request) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		posts, err := h.store.ListPosts(r.Context(), company.CompanyID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	case http.MethodPost:
		var req createPostRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name is required")
			return
		}

		post, err := h.store.CreatePost(r.Context(), company.CompanyID, req.Name)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, post)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePostByID(w http.ResponseWriter, r *http.Request) {
	company, ok := h.requireCompany(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/posts/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	postID := parts[0]
	if !isValidUUID(postID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "post_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := h.store.DeletePost(r.Context(), company.CompanyID, postID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 3 && parts[1] == "actions" && parts[2] == "call-next" && r.Method == http.MethodPost:
		h.handleCallNext(w, r, company, postID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request, company models.Company, postID string) {
	ticket, found, err := h.store.CallNext(r.Context(), store.CallNextInput{
		CompanyID: company.CompanyID,
		PostID:    postID,
		CalledAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.publish(store.EventForAction("call"), ticket)
	writeJSON(w, http.StatusOK, ticket)
}
