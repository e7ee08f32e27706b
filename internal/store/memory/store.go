// Package memory holds a mutex-guarded in-memory implementation of the
// storage interface. It backs unit tests and the no-database development
// mode of the server binary.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"
)

const defaultSessionTTL = 8 * time.Hour

type company struct {
	models.Company
	passwordHash string
}

type Store struct {
	SessionTTL time.Duration

	mu            sync.Mutex
	companies     map[string]*company
	services      map[string]models.Service
	posts         map[string]models.Post
	tickets       map[string]models.Ticket
	sessions      map[string]models.Session
	events        []store.OutboxEvent
	notifications []store.Notification
	notifyOffset  time.Time
}

func NewStore() *Store {
	return &Store{
		SessionTTL: defaultSessionTTL,
		companies:  make(map[string]*company),
		services:   make(map[string]models.Service),
		posts:      make(map[string]models.Post),
		tickets:    make(map[string]models.Ticket),
		sessions:   make(map[string]models.Session),
	}
}

func (s *Store) EnsureCompany(ctx context.Context, email, name string) (models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureCompanyLocked(email, name), nil
}

func (s *Store) ensureCompanyLocked(email, name string) models.Company {
	for _, c := range s.companies {
		if c.Email == email {
			return c.Company
		}
	}
	c := &company{Company: models.Company{
		CompanyID: uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}}
	s.companies[c.CompanyID] = c
	return c.Company
}

func (s *Store) GetCompanyByEmail(ctx context.Context, email string) (models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Email == email {
			return c.Company, nil
		}
	}
	return models.Company{}, store.ErrCompanyNotFound
}

func (s *Store) GetCompanyByPageName(ctx context.Context, pageName string) (models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.companyByPageLocked(pageName)
	if err != nil {
		return models.Company{}, err
	}
	return c.Company, nil
}

func (s *Store) companyByPageLocked(pageName string) (*company, error) {
	if pageName == "" {
		return nil, store.ErrCompanyNotFound
	}
	for _, c := range s.companies {
		if c.PageName == pageName {
			return c, nil
		}
	}
	return nil, store.ErrCompanyNotFound
}

func (s *Store) SetCompanyPageName(ctx context.Context, companyID, pageName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok {
		return store.ErrCompanyNotFound
	}
	for _, other := range s.companies {
		if other.CompanyID != companyID && other.PageName == pageName && pageName != "" {
			return store.ErrPageNameTaken
		}
	}
	c.PageName = pageName
	return nil
}

func (s *Store) RegisterCompany(ctx context.Context, email, name, password string) (store.LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Email == email {
			return store.LoginResult{}, store.ErrEmailTaken
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.LoginResult{}, err
	}
	c := &company{
		Company: models.Company{
			CompanyID: uuid.NewString(),
			Email:     email,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
		passwordHash: string(hash),
	}
	s.companies[c.CompanyID] = c
	return store.LoginResult{Company: c.Company, Session: s.createSessionLocked(c.Company)}, nil
}

func (s *Store) Login(ctx context.Context, email, password string) (store.LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Email != email {
			continue
		}
		if c.passwordHash == "" {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(c.passwordHash), []byte(password)); err != nil {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{Company: c.Company, Session: s.createSessionLocked(c.Company)}, nil
	}
	return store.LoginResult{}, store.ErrInvalidCredentials
}

func (s *Store) SSOLogin(ctx context.Context, email, name string) (store.LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureCompanyLocked(email, name)
	return store.LoginResult{Company: c, Session: s.createSessionLocked(c)}, nil
}

func (s *Store) createSessionLocked(c models.Company) models.Session {
	sess := models.Session{
		SessionID: uuid.NewString(),
		Email:     c.Email,
		Name:      c.Name,
		ExpiresAt: time.Now().UTC().Add(s.SessionTTL),
	}
	s.sessions[sess.SessionID] = sess
	return sess
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return models.Session{}, store.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) CreateService(ctx context.Context, input store.CreateServiceInput) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[input.CompanyID]; !ok {
		return models.Service{}, store.ErrCompanyNotFound
	}
	svc := models.Service{
		ServiceID:       uuid.NewString(),
		CompanyID:       input.CompanyID,
		Name:            input.Name,
		AvgMinutes:      input.AvgMinutes,
		SupportsUrgency: input.SupportsUrgency,
	}
	s.services[svc.ServiceID] = svc
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, companyID string) ([]models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Service
	for _, svc := range s.services {
		if svc.CompanyID == companyID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteService(ctx context.Context, companyID, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.CompanyID != companyID {
		return store.ErrServiceNotFound
	}
	delete(s.services, serviceID)
	for id, t := range s.tickets {
		if t.ServiceID == serviceID {
			delete(s.tickets, id)
		}
	}
	return nil
}

func (s *Store) SetServiceUrgencySupport(ctx context.Context, companyID, serviceID string, supports bool) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.CompanyID != companyID {
		return models.Service{}, store.ErrServiceNotFound
	}
	svc.SupportsUrgency = supports
	s.services[serviceID] = svc
	return svc, nil
}

func (s *Store) CreatePost(ctx context.Context, companyID, name string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[companyID]; !ok {
		return models.Post{}, store.ErrCompanyNotFound
	}
	p := models.Post{PostID: uuid.NewString(), CompanyID: companyID, Name: name}
	s.posts[p.PostID] = p
	return p, nil
}

func (s *Store) ListPosts(ctx context.Context, companyID string) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Post
	for _, p := range s.posts {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeletePost(ctx context.Context, companyID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok || p.CompanyID != companyID {
		return store.ErrPostNotFound
	}
	delete(s.posts, postID)
	for id, t := range s.tickets {
		if t.PostID != nil && *t.PostID == postID {
			t.PostID = nil
			s.tickets[id] = t
		}
	}
	return nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.companyByPageLocked(input.PageName)
	if err != nil {
		return models.Ticket{}, err
	}
	svc, ok := s.services[input.ServiceID]
	if !ok || svc.CompanyID != c.CompanyID {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	phone, err := store.NormalizePhone(input.Phone)
	if err != nil {
		return models.Ticket{}, err
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	c.TicketSeq++
	t := models.Ticket{
		TicketID:      uuid.NewString(),
		Num:           store.FormatTicketNumber(c.PageName, c.TicketSeq),
		CompanyID:     c.CompanyID,
		ServiceID:     svc.ServiceID,
		CustomerName:  input.CustomerName,
		CustomerPhone: phone,
		Status:        models.StatusPending,
		IsUrgent:      store.EffectiveUrgency(svc, input.Urgent),
		CreatedAt:     createdAt,
	}
	s.tickets[t.TicketID] = t
	s.appendEventLocked(c.CompanyID, "ticket.created", t)
	return s.decorateLocked(t), nil
}

func (s *Store) ListQueue(ctx context.Context, companyID string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.CompanyID != companyID {
			continue
		}
		switch t.Status {
		case models.StatusPending, models.StatusCall, models.StatusInProgress:
			out = append(out, s.decorateLocked(t))
		}
	}
	store.SortQueue(out)
	store.ComputeWaitEstimates(out)
	return out, nil
}

func (s *Store) TrackTickets(ctx context.Context, nums []string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(nums))
	for _, num := range nums {
		wanted[num] = true
	}
	var out []models.Ticket
	for _, t := range s.tickets {
		if wanted[t.Num] {
			out = append(out, s.decorateLocked(t))
		}
	}
	if len(out) == 0 {
		return nil, store.ErrTicketNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[input.PostID]
	if !ok || p.CompanyID != input.CompanyID {
		return models.Ticket{}, false, store.ErrPostNotFound
	}

	var active *models.Ticket
	for _, t := range s.tickets {
		t := t
		if t.PostID == nil || *t.PostID != p.PostID {
			continue
		}
		if t.Status != models.StatusCall && t.Status != models.StatusInProgress {
			continue
		}
		if active == nil || t.CreatedAt.After(active.CreatedAt) {
			active = &t
		}
	}
	if active != nil {
		return s.decorateLocked(*active), true, nil
	}

	var pending []models.Ticket
	for _, t := range s.tickets {
		if t.CompanyID == input.CompanyID && t.Status == models.StatusPending {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return models.Ticket{}, false, nil
	}
	store.SortQueue(pending)
	t := pending[0]
	t.Status = models.StatusCall
	t.PostID = &p.PostID
	t.PostName = &p.Name
	s.tickets[t.TicketID] = t
	s.appendEventLocked(t.CompanyID, store.EventForAction("call"), t)
	return s.decorateLocked(t), true, nil
}

func (s *Store) AdvanceTicket(ctx context.Context, companyID, ticketID, action string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to, ok := store.TransitionFor(action)
	if !ok {
		return models.Ticket{}, store.ErrInvalidTransition
	}
	t, exists := s.tickets[ticketID]
	if !exists || t.CompanyID != companyID {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if t.Status != from {
		return models.Ticket{}, store.ErrInvalidTransition
	}
	t.Status = to
	s.tickets[ticketID] = t
	s.appendEventLocked(companyID, store.EventForAction(action), t)
	return s.decorateLocked(t), nil
}

func (s *Store) SetTicketUrgency(ctx context.Context, companyID, ticketID string, urgent bool) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.CompanyID != companyID {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	svc := s.services[t.ServiceID]
	if urgent && !svc.SupportsUrgency {
		return models.Ticket{}, store.ErrUrgencyNotSupported
	}
	t.IsUrgent = urgent
	s.tickets[ticketID] = t
	s.appendEventLocked(companyID, "ticket.urgency_changed", t)
	return s.decorateLocked(t), nil
}

func (s *Store) ListFinishedTickets(ctx context.Context, companyID string, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.CompanyID == companyID && t.Status == models.StatusFinished {
			out = append(out, s.decorateLocked(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TicketStats(ctx context.Context, companyID string) (models.TicketStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.TicketStats
	for _, t := range s.tickets {
		if t.CompanyID != companyID {
			continue
		}
		stats.Total++
		switch t.Status {
		case models.StatusFinished:
			stats.Finished++
		case models.StatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.OutboxEvent
	for _, ev := range s.events {
		if !ev.CreatedAt.After(after) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) NotifyOffset(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyOffset, nil
}

func (s *Store) SetNotifyOffset(ctx context.Context, offset time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyOffset = offset
	return nil
}

func (s *Store) RecordNotification(ctx context.Context, n store.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, n)
	return nil
}

// Notifications returns a copy of the recorded notifications, oldest first.
func (s *Store) Notifications() []store.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Store) decorateLocked(t models.Ticket) models.Ticket {
	if svc, ok := s.services[t.ServiceID]; ok {
		t.ServiceName = svc.Name
		t.AvgMinutes = svc.AvgMinutes
	}
	return t
}

func (s *Store) appendEventLocked(companyID, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.events = append(s.events, store.OutboxEvent{
		EventID:   uuid.NewString(),
		CompanyID: companyID,
		Type:      eventType,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	})
}
