package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionTTL = 8 * time.Hour

type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

type Options struct {
	SessionTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Store{pool: pool, sessionTTL: ttl}
}

const companyColumns = `company_id, email, name, COALESCE(page_name, ''), ticket_seq, created_at`

func scanCompany(row pgx.Row) (models.Company, error) {
	var c models.Company
	if err := row.Scan(&c.CompanyID, &c.Email, &c.Name, &c.PageName, &c.TicketSeq, &c.CreatedAt); err != nil {
		return models.Company{}, err
	}
	return c, nil
}

func (s *Store) EnsureCompany(ctx context.Context, email, name string) (models.Company, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO companies (company_id, email, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+companyColumns+`
	`, uuid.NewString(), email, name, time.Now().UTC())
	return scanCompany(row)
}

func (s *Store) GetCompanyByEmail(ctx context.Context, email string) (models.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE email = $1`, email)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Company{}, store.ErrCompanyNotFound
	}
	return c, err
}

func (s *Store) GetCompanyByPageName(ctx context.Context, pageName string) (models.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE page_name = $1`, pageName)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Company{}, store.ErrCompanyNotFound
	}
	return c, err
}

func (s *Store) SetCompanyPageName(ctx context.Context, companyID, pageName string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM companies WHERE page_name = $1 AND company_id <> $2)
	`, pageName, companyID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		err = store.ErrPageNameTaken
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE companies SET page_name = $1 WHERE company_id = $2`, nullIfEmpty(pageName), companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrCompanyNotFound
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) RegisterCompany(ctx context.Context, email, name, password string) (store.LoginResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.LoginResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.LoginResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE email = $1)`, email).Scan(&exists); err != nil {
		return store.LoginResult{}, err
	}
	if exists {
		err = store.ErrEmailTaken
		return store.LoginResult{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO companies (company_id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+companyColumns+`
	`, uuid.NewString(), email, name, string(hash), time.Now().UTC())
	company, err := scanCompany(row)
	if err != nil {
		return store.LoginResult{}, err
	}

	session, err := s.createSession(ctx, tx, company)
	if err != nil {
		return store.LoginResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{Company: company, Session: session}, nil
}

func (s *Store) Login(ctx context.Context, email, password string) (store.LoginResult, error) {
	var company models.Company
	var hashNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT company_id, email, name, COALESCE(page_name, ''), ticket_seq, created_at, password_hash
		FROM companies WHERE email = $1
	`, email)
	if err := row.Scan(&company.CompanyID, &company.Email, &company.Name, &company.PageName, &company.TicketSeq, &company.CreatedAt, &hashNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}
	if !hashNull.Valid || hashNull.String == "" {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashNull.String), []byte(password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, s.pool, company)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{Company: company, Session: session}, nil
}

func (s *Store) SSOLogin(ctx context.Context, email, name string) (store.LoginResult, error) {
	company, err := s.EnsureCompany(ctx, email, name)
	if err != nil {
		return store.LoginResult{}, err
	}
	session, err := s.createSession(ctx, s.pool, company)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{Company: company, Session: session}, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) createSession(ctx context.Context, q execer, company models.Company) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		Email:     company.Email,
		Name:      company.Name,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	_, err := q.Exec(ctx, `
		INSERT INTO sessions (session_id, email, name, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.SessionID, session.Email, session.Name, session.ExpiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var session models.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, email, name, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.Email, &session.Name, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) CreateService(ctx context.Context, input store.CreateServiceInput) (models.Service, error) {
	var svc models.Service
	row := s.pool.QueryRow(ctx, `
		INSERT INTO services (service_id, company_id, name, avg_minutes, supports_urgency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING service_id, company_id, name, avg_minutes, supports_urgency
	`, uuid.NewString(), input.CompanyID, input.Name, input.AvgMinutes, input.SupportsUrgency)
	if err := row.Scan(&svc.ServiceID, &svc.CompanyID, &svc.Name, &svc.AvgMinutes, &svc.SupportsUrgency); err != nil {
		if isForeignKeyViolation(err) {
			return models.Service{}, store.ErrCompanyNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, companyID string) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, company_id, name, avg_minutes, supports_urgency
		FROM services
		WHERE company_id = $1
		ORDER BY name ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.CompanyID, &svc.Name, &svc.AvgMinutes, &svc.SupportsUrgency); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) DeleteService(ctx context.Context, companyID, serviceID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM services WHERE service_id = $1 AND company_id = $2
	`, serviceID, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrServiceNotFound
	}
	return nil
}

func (s *Store) SetServiceUrgencySupport(ctx context.Context, companyID, serviceID string, supports bool) (models.Service, error) {
	var svc models.Service
	row := s.pool.QueryRow(ctx, `
		UPDATE services SET supports_urgency = $1
		WHERE service_id = $2 AND company_id = $3
		RETURNING service_id, company_id, name, avg_minutes, supports_urgency
	`, supports, serviceID, companyID)
	if err := row.Scan(&svc.ServiceID, &svc.CompanyID, &svc.Name, &svc.AvgMinutes, &svc.SupportsUrgency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func (s *Store) CreatePost(ctx context.Context, companyID, name string) (models.Post, error) {
	var post models.Post
	row := s.pool.QueryRow(ctx, `
		INSERT INTO posts (post_id, company_id, name)
		VALUES ($1, $2, $3)
		RETURNING post_id, company_id, name
	`, uuid.NewString(), companyID, name)
	if err := row.Scan(&post.PostID, &post.CompanyID, &post.Name); err != nil {
		if isForeignKeyViolation(err) {
			return models.Post{}, store.ErrCompanyNotFound
		}
		return models.Post{}, err
	}
	return post, nil
}

func (s *Store) ListPosts(ctx context.Context, companyID string) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT post_id, company_id, name
		FROM posts
		WHERE company_id = $1
		ORDER BY name ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.PostID, &post.CompanyID, &post.Name); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) DeletePost(ctx context.Context, companyID, postID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM posts WHERE post_id = $1 AND company_id = $2
	`, postID, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
