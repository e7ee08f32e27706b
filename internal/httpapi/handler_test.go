package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"
)

type fakeStore struct {
	ensureCompanyFn   func(ctx context.Context, email, name string) (models.Company, error)
	companyByEmailFn  func(ctx context.Context, email string) (models.Company, error)
	companyByPageFn   func(ctx context.Context, pageName string) (models.Company, error)
	setPageNameFn     func(ctx context.Context, companyID, pageName string) error
	registerFn        func(ctx context.Context, email, name, password string) (store.LoginResult, error)
	loginFn           func(ctx context.Context, email, password string) (store.LoginResult, error)
	ssoLoginFn        func(ctx context.Context, email, name string) (store.LoginResult, error)
	getSessionFn      func(ctx context.Context, sessionID string) (models.Session, error)
	createServiceFn   func(ctx context.Context, input store.CreateServiceInput) (models.Service, error)
	listServicesFn    func(ctx context.Context, companyID string) ([]models.Service, error)
	deleteServiceFn   func(ctx context.Context, companyID, serviceID string) error
	serviceUrgencyFn  func(ctx context.Context, companyID, serviceID string, supports bool) (models.Service, error)
	createPostFn      func(ctx context.Context, companyID, name string) (models.Post, error)
	listPostsFn       func(ctx context.Context, companyID string) ([]models.Post, error)
	deletePostFn      func(ctx context.Context, companyID, postID string) error
	createTicketFn    func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error)
	listQueueFn       func(ctx context.Context, companyID string) ([]models.Ticket, error)
	trackFn           func(ctx context.Context, nums []string) ([]models.Ticket, error)
	callNextFn        func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error)
	advanceFn         func(ctx context.Context, companyID, ticketID, action string) (models.Ticket, error)
	ticketUrgencyFn   func(ctx context.Context, companyID, ticketID string, urgent bool) (models.Ticket, error)
	listFinishedFn    func(ctx context.Context, companyID string, limit int) ([]models.Ticket, error)
	statsFn           func(ctx context.Context, companyID string) (models.TicketStats, error)
	listOutboxFn      func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) EnsureCompany(ctx context.Context, email, name string) (models.Company, error) {
	if f.ensureCompanyFn == nil {
		return models.Company{}, nil
	}
	return f.ensureCompanyFn(ctx, email, name)
}

func (f fakeStore) GetCompanyByEmail(ctx context.Context, email string) (models.Company, error) {
	if f.companyByEmailFn == nil {
		return models.Company{CompanyID: testCompanyID, Email: email, Name: "Société", PageName: "societe"}, nil
	}
	return f.companyByEmailFn(ctx, email)
}

func (f fakeStore) GetCompanyByPageName(ctx context.Context, pageName string) (models.Company, error) {
	if f.companyByPageFn == nil {
		return models.Company{}, store.ErrCompanyNotFound
	}
	return f.companyByPageFn(ctx, pageName)
}

func (f fakeStore) SetCompanyPageName(ctx context.Context, companyID, pageName string) error {
	if f.setPageNameFn == nil {
		return nil
	}
	return f.setPageNameFn(ctx, companyID, pageName)
}

func (f fakeStore) RegisterCompany(ctx context.Context, email, name, password string) (store.LoginResult, error) {
	if f.registerFn == nil {
		return store.LoginResult{}, nil
	}
	return f.registerFn(ctx, email, name, password)
}

func (f fakeStore) Login(ctx context.Context, email, password string) (store.LoginResult, error) {
	if f.loginFn == nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	return f.loginFn(ctx, email, password)
}

func (f fakeStore) SSOLogin(ctx context.Context, email, name string) (store.LoginResult, error) {
	if f.ssoLoginFn == nil {
		return store.LoginResult{}, nil
	}
	return f.ssoLoginFn(ctx, email, name)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	if f.getSessionFn == nil {
		if sessionID == testSessionID {
			return models.Session{SessionID: sessionID, Email: "owner@example.sn", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		return models.Session{}, store.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, sessionID)
}

func (f fakeStore) CreateService(ctx context.Context, input store.CreateServiceInput) (models.Service, error) {
	if f.createServiceFn == nil {
		return models.Service{}, nil
	}
	return f.createServiceFn(ctx, input)
}

func (f fakeStore) ListServices(ctx context.Context, companyID string) ([]models.Service, error) {
	if f.listServicesFn == nil {
		return nil, nil
	}
	return f.listServicesFn(ctx, companyID)
}

func (f fakeStore) DeleteService(ctx context.Context, companyID, serviceID string) error {
	if f.deleteServiceFn == nil {
		return nil
	}
	return f.deleteServiceFn(ctx, companyID, serviceID)
}

func (f fakeStore) SetServiceUrgencySupport(ctx context.Context, companyID, serviceID string, supports bool) (models.Service, error) {
	if f.serviceUrgencyFn == nil {
		return models.Service{}, nil
	}
	return f.serviceUrgencyFn(ctx, companyID, serviceID, supports)
}

func (f fakeStore) CreatePost(ctx context.Context, companyID, name string) (models.Post, error) {
	if f.createPostFn == nil {
		return models.Post{}, nil
	}
	return f.createPostFn(ctx, companyID, name)
}

func (f fakeStore) ListPosts(ctx context.Context, companyID string) ([]models.Post, error) {
	if f.listPostsFn == nil {
		return nil, nil
	}
	return f.listPostsFn(ctx, companyID)
}

func (f fakeStore) DeletePost(ctx context.Context, companyID, postID string) error {
	if f.deletePostFn == nil {
		return nil
	}
	return f.deletePostFn(ctx, companyID, postID)
}

func (f fakeStore) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	if f.createTicketFn == nil {
		return models.Ticket{}, nil
	}
	return f.createTicketFn(ctx, input)
}

func (f fakeStore) ListQueue(ctx context.Context, companyID string) ([]models.Ticket, error) {
	if f.listQueueFn == nil {
		return nil, nil
	}
	return f.listQueueFn(ctx, companyID)
}

func (f fakeStore) TrackTickets(ctx context.Context, nums []string) ([]models.Ticket, error) {
	if f.trackFn == nil {
		return nil, store.ErrTicketNotFound
	}
	return f.trackFn(ctx, nums)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	if f.callNextFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.callNextFn(ctx, input)
}

func (f fakeStore) AdvanceTicket(ctx context.Context, companyID, ticketID, action string) (models.Ticket, error) {
	if f.advanceFn == nil {
		return models.Ticket{}, nil
	}
	return f.advanceFn(ctx, companyID, ticketID, action)
}

func (f fakeStore) SetTicketUrgency(ctx context.Context, companyID, ticketID string, urgent bool) (models.Ticket, error) {
	if f.ticketUrgencyFn == nil {
		return models.Ticket{}, nil
	}
	return f.ticketUrgencyFn(ctx, companyID, ticketID, urgent)
}

func (f fakeStore) ListFinishedTickets(ctx context.Context, companyID string, limit int) ([]models.Ticket, error) {
	if f.listFinishedFn == nil {
		return nil, nil
	}
	return f.listFinishedFn(ctx, companyID, limit)
}

func (f fakeStore) TicketStats(ctx context.Context, companyID string) (models.TicketStats, error) {
	if f.statsFn == nil {
		return models.TicketStats{}, nil
	}
	return f.statsFn(ctx, companyID)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.listOutboxFn == nil {
		return nil, nil
	}
	return f.listOutboxFn(ctx, after, limit)
}

const (
	testCompanyID = "0d4f0e66-6f6a-4f74-9a39-0f6a2f1f3b10"
	testSessionID = "c3a1f5a0-92c4-4b52-8a41-56b0b20b3f77"
	testServiceID = "6a0e84f3-3f2a-41a6-bb0e-dc0f9a1c58d2"
	testTicketID  = "9a6e1db3-7a3e-4b0e-8a3d-b5a87d9f1c44"
	testPostID    = "4f9d2c8a-5e47-4f04-b6a2-7d2f1c3e9b55"
)

func newTestServer(st store.Store) http.Handler {
	handler := NewHandler(st, nil, Options{BaseURL: "https://kosso.example.sn"})
	return AuthMiddleware(st, handler.Routes())
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testSessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestCreateTicket(t *testing.T) {
	var got store.CreateTicketInput
	st := fakeStore{
		createTicketFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
			got = input
			return models.Ticket{TicketID: testTicketID, Num: "BOUL0001", Status: models.StatusPending}, nil
		},
	}
	h := newTestServer(st)

	rec := doRequest(t, h, http.MethodPost, "/api/tickets", createTicketRequest{
		PageName:  "boulangerie",
		ServiceID: testServiceID,
		Phone:     "+221 77 123 45 67",
		Urgent:    true,
	}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got.PageName != "boulangerie" || got.ServiceID != testServiceID || !got.Urgent {
		t.Fatalf("input = %+v", got)
	}

	var ticket models.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if ticket.Num != "BOUL0001" {
		t.Fatalf("num = %q", ticket.Num)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	h := newTestServer(fakeStore{})

	rec := doRequest(t, h, http.MethodPost, "/api/tickets", createTicketRequest{ServiceID: testServiceID, Phone: "+221771234567"}, false)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("missing page_name: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/api/tickets", map[string]any{"page_name": "x", "service_id": testServiceID, "phone": "+221771234567", "bogus": true}, false)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_json" {
		t.Fatalf("unknown field: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTicketStoreErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		code     string
	}{
		{"unknown page", store.ErrCompanyNotFound, http.StatusNotFound, "company_not_found"},
		{"unknown service", store.ErrServiceNotFound, http.StatusNotFound, "service_not_found"},
		{"bad phone", store.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(fakeStore{
				createTicketFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
					return models.Ticket{}, tc.err
				},
			})
			rec := doRequest(t, h, http.MethodPost, "/api/tickets", createTicketRequest{
				PageName: "boulangerie", ServiceID: testServiceID, Phone: "+221771234567",
			}, false)
			if rec.Code != tc.status || errorCode(t, rec) != tc.code {
				t.Fatalf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTrackTickets(t *testing.T) {
	var gotNums []string
	h := newTestServer(fakeStore{
		trackFn: func(ctx context.Context, nums []string) ([]models.Ticket, error) {
			gotNums = nums
			return []models.Ticket{{Num: "BOUL0001"}, {Num: "BOUL0002"}}, nil
		},
	})

	rec := doRequest(t, h, http.MethodGet, "/api/tickets/track?nums=BOUL0001,%20BOUL0002", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(gotNums) != 2 || gotNums[0] != "BOUL0001" || gotNums[1] != "BOUL0002" {
		t.Fatalf("nums = %v", gotNums)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/tickets/track", nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing nums: %d", rec.Code)
	}
}

func TestQueueRequiresSession(t *testing.T) {
	h := newTestServer(fakeStore{})

	rec := doRequest(t, h, http.MethodGet, "/api/queue", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no session: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set("Authorization", "Bearer invalid-session")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad session: %d", rec.Code)
	}
}

func TestQueue(t *testing.T) {
	h := newTestServer(fakeStore{
		listQueueFn: func(ctx context.Context, companyID string) ([]models.Ticket, error) {
			if companyID != testCompanyID {
				t.Errorf("companyID = %s", companyID)
			}
			return []models.Ticket{
				{Num: "SOC0002", IsUrgent: true, WaitMinutes: 0},
				{Num: "SOC0001", WaitMinutes: 10},
			}, nil
		},
	})

	rec := doRequest(t, h, http.MethodGet, "/api/queue", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var tickets []models.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &tickets); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(tickets) != 2 || tickets[0].Num != "SOC0002" {
		t.Fatalf("queue = %+v", tickets)
	}
}

func TestCallNext(t *testing.T) {
	h := newTestServer(fakeStore{
		callNextFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			if input.CompanyID != testCompanyID || input.PostID != testPostID {
				t.Errorf("input = %+v", input)
			}
			return models.Ticket{TicketID: testTicketID, Status: models.StatusCall}, true, nil
		},
	})

	rec := doRequest(t, h, http.MethodPost, "/api/posts/"+testPostID+"/actions/call-next", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	h := newTestServer(fakeStore{
		callNextFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, nil
		},
	})

	rec := doRequest(t, h, http.MethodPost, "/api/posts/"+testPostID+"/actions/call-next", nil, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestTicketActionInvalidTransition(t *testing.T) {
	h := newTestServer(fakeStore{
		advanceFn: func(ctx context.Context, companyID, ticketID, action string) (models.Ticket, error) {
			return models.Ticket{}, store.ErrInvalidTransition
		},
	})

	rec := doRequest(t, h, http.MethodPost, "/api/tickets/"+testTicketID+"/actions/finish", nil, true)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "invalid_transition" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestTicketActionUnknown(t *testing.T) {
	h := newTestServer(fakeStore{})

	rec := doRequest(t, h, http.MethodPost, "/api/tickets/"+testTicketID+"/actions/reopen", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTicketUrgencyUnsupported(t *testing.T) {
	h := newTestServer(fakeStore{
		ticketUrgencyFn: func(ctx context.Context, companyID, ticketID string, urgent bool) (models.Ticket, error) {
			return models.Ticket{}, store.ErrUrgencyNotSupported
		},
	})

	rec := doRequest(t, h, http.MethodPatch, "/api/tickets/"+testTicketID+"/urgency", urgencyRequest{Urgent: true}, true)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "urgency_not_supported" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPublicPageServices(t *testing.T) {
	h := newTestServer(fakeStore{
		companyByPageFn: func(ctx context.Context, pageName string) (models.Company, error) {
			if pageName != "boulangerie" {
				return models.Company{}, store.ErrCompanyNotFound
			}
			return models.Company{CompanyID: testCompanyID, Name: "Boulangerie Ndiaye", PageName: "boulangerie"}, nil
		},
		listServicesFn: func(ctx context.Context, companyID string) ([]models.Service, error) {
			return []models.Service{{ServiceID: testServiceID, Name: "Retrait"}}, nil
		},
	})

	rec := doRequest(t, h, http.MethodGet, "/api/page/boulangerie/services", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp publicPageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if resp.CompanyName != "Boulangerie Ndiaye" || len(resp.Services) != 1 {
		t.Fatalf("page = %+v", resp)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/page/inconnue/services", nil, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown page: %d", rec.Code)
	}
}

func TestQRTarget(t *testing.T) {
	h := newTestServer(fakeStore{
		companyByPageFn: func(ctx context.Context, pageName string) (models.Company, error) {
			return models.Company{CompanyID: testCompanyID, PageName: pageName}, nil
		},
	})

	rec := doRequest(t, h, http.MethodGet, "/api/qr/boulangerie", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp qrTargetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode qr: %v", err)
	}
	if resp.URL != "https://kosso.example.sn/page/boulangerie" {
		t.Fatalf("url = %q", resp.URL)
	}
}

func TestLogin(t *testing.T) {
	h := newTestServer(fakeStore{
		loginFn: func(ctx context.Context, email, password string) (store.LoginResult, error) {
			if password != "secret123" {
				return store.LoginResult{}, store.ErrInvalidCredentials
			}
			return store.LoginResult{
				Company: models.Company{CompanyID: testCompanyID, Email: email},
				Session: models.Session{SessionID: testSessionID, Email: email, ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		},
	})

	rec := doRequest(t, h, http.MethodPost, "/api/auth/login", loginRequest{Email: "owner@example.sn", Password: "secret123"}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.SessionID != testSessionID {
		t.Fatalf("session = %q", resp.SessionID)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/auth/login", loginRequest{Email: "owner@example.sn", Password: "wrong"}, false)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "invalid_credentials" {
		t.Fatalf("wrong password: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPageNameConflictResponse(t *testing.T) {
	h := newTestServer(fakeStore{
		setPageNameFn: func(ctx context.Context, companyID, pageName string) error {
			return store.ErrPageNameTaken
		},
	})

	rec := doRequest(t, h, http.MethodPut, "/api/company/page-name", pageNameRequest{PageName: "shared"}, true)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "page_name_taken" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateServiceDefaults(t *testing.T) {
	var got store.CreateServiceInput
	h := newTestServer(fakeStore{
		createServiceFn: func(ctx context.Context, input store.CreateServiceInput) (models.Service, error) {
			got = input
			return models.Service{ServiceID: testServiceID, CompanyID: input.CompanyID, Name: input.Name, AvgMinutes: input.AvgMinutes}, nil
		},
	})

	rec := doRequest(t, h, http.MethodPost, "/api/services", createServiceRequest{Name: "Guichet"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got.CompanyID != testCompanyID || got.AvgMinutes != 10 {
		t.Fatalf("input = %+v", got)
	}
}

func TestStats(t *testing.T) {
	h := newTestServer(fakeStore{
		statsFn: func(ctx context.Context, companyID string) (models.TicketStats, error) {
			return models.TicketStats{Total: 5, Finished: 3, Pending: 1}, nil
		},
	})

	rec := doRequest(t, h, http.MethodGet, "/api/stats", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var stats models.TicketStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 5 || stats.Finished != 3 || stats.Pending != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
