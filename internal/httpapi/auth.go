package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"
)

type authContextKey struct{}

type authInfo struct {
	Session models.Session
	Company models.Company
}

// AuthMiddleware resolves the session token on every non-public request and
// attaches the owning company to the request context. The company scope for
// all authenticated handlers comes from here, never from the payload.
func AuthMiddleware(st store.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		company, err := st.GetCompanyByEmail(r.Context(), session.Email)
		if err != nil {
			if errors.Is(err, store.ErrCompanyNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "unknown company")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, Company: company})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func (h *Handler) requireCompany(w http.ResponseWriter, r *http.Request) (models.Company, bool) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return models.Company{}, false
	}
	return info.Company, true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/page/") || strings.HasPrefix(r.URL.Path, "/api/qr/") {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/register", "/api/auth/login", "/api/auth/sso":
		return true
	case "/api/tickets":
		return r.Method == http.MethodPost
	case "/api/tickets/track":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
