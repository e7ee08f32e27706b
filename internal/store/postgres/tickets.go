package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ticketColumns = `t.ticket_id, t.num, t.company_id, t.service_id, t.customer_name, t.customer_phone,
	t.status, t.is_urgent, t.post_id, t.post_name, t.created_at, s.name, s.avg_minutes`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var postIDNull sql.NullString
	var postNameNull sql.NullString
	err := row.Scan(&ticket.TicketID, &ticket.Num, &ticket.CompanyID, &ticket.ServiceID,
		&ticket.CustomerName, &ticket.CustomerPhone, &ticket.Status, &ticket.IsUrgent,
		&postIDNull, &postNameNull, &ticket.CreatedAt, &ticket.ServiceName, &ticket.AvgMinutes)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.PostID = nullStringPtr(postIDNull)
	ticket.PostName = nullStringPtr(postNameNull)
	return ticket, nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	phone, err := store.NormalizePhone(input.Phone)
	if err != nil {
		return models.Ticket{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var companyID, pageName string
	err = tx.QueryRow(ctx, `
		SELECT company_id, page_name FROM companies WHERE page_name = $1
	`, input.PageName).Scan(&companyID, &pageName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCompanyNotFound
		}
		return models.Ticket{}, err
	}

	var svc models.Service
	err = tx.QueryRow(ctx, `
		SELECT service_id, company_id, name, avg_minutes, supports_urgency
		FROM services
		WHERE service_id = $1 AND company_id = $2
	`, input.ServiceID, companyID).Scan(&svc.ServiceID, &svc.CompanyID, &svc.Name, &svc.AvgMinutes, &svc.SupportsUrgency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrServiceNotFound
		}
		return models.Ticket{}, err
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		UPDATE companies SET ticket_seq = ticket_seq + 1
		WHERE company_id = $1
		RETURNING ticket_seq
	`, companyID).Scan(&seq)
	if err != nil {
		return models.Ticket{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ticket := models.Ticket{
		TicketID:      uuid.NewString(),
		Num:           store.FormatTicketNumber(pageName, seq),
		CompanyID:     companyID,
		ServiceID:     svc.ServiceID,
		CustomerName:  input.CustomerName,
		CustomerPhone: phone,
		Status:        models.StatusPending,
		IsUrgent:      store.EffectiveUrgency(svc, input.Urgent),
		CreatedAt:     createdAt,
		ServiceName:   svc.Name,
		AvgMinutes:    svc.AvgMinutes,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (ticket_id, num, company_id, service_id, customer_name, customer_phone, status, is_urgent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ticket.TicketID, ticket.Num, ticket.CompanyID, ticket.ServiceID, ticket.CustomerName, ticket.CustomerPhone, ticket.Status, ticket.IsUrgent, ticket.CreatedAt)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, companyID, "ticket.created", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListQueue(ctx context.Context, companyID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.company_id = $1 AND t.status IN ('PENDING','CALL','IN_PROGRESS')
		ORDER BY t.is_urgent DESC, t.created_at ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	store.ComputeWaitEstimates(tickets)
	return tickets, nil
}

func (s *Store) TrackTickets(ctx context.Context, nums []string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.num = ANY($1)
		ORDER BY t.created_at ASC
	`, nums)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, store.ErrTicketNotFound
	}
	return tickets, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var postName string
	err = tx.QueryRow(ctx, `
		SELECT name FROM posts WHERE post_id = $1 AND company_id = $2
	`, input.PostID, input.CompanyID).Scan(&postName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrPostNotFound
		}
		return models.Ticket{}, false, err
	}

	// A post keeps its current customer until the ticket is finished.
	active, err := scanTicket(tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.post_id = $1 AND t.status IN ('CALL','IN_PROGRESS')
		ORDER BY t.created_at DESC
		LIMIT 1
	`, input.PostID))
	if err == nil {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return active, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, false, err
	}
	err = nil

	var ticket models.Ticket
	var postIDNull sql.NullString
	var postNameNull sql.NullString
	err = tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE company_id = $1 AND status = 'PENDING'
			ORDER BY is_urgent DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets SET status = 'CALL', post_id = $2, post_name = $3
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING tickets.ticket_id, tickets.num, tickets.company_id, tickets.service_id,
			tickets.customer_name, tickets.customer_phone, tickets.status, tickets.is_urgent,
			tickets.post_id, tickets.post_name, tickets.created_at
	`, input.CompanyID, input.PostID, postName).Scan(
		&ticket.TicketID, &ticket.Num, &ticket.CompanyID, &ticket.ServiceID,
		&ticket.CustomerName, &ticket.CustomerPhone, &ticket.Status, &ticket.IsUrgent,
		&postIDNull, &postNameNull, &ticket.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.Commit(ctx)
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, err
	}
	ticket.PostID = nullStringPtr(postIDNull)
	ticket.PostName = nullStringPtr(postNameNull)

	err = tx.QueryRow(ctx, `
		SELECT name, avg_minutes FROM services WHERE service_id = $1
	`, ticket.ServiceID).Scan(&ticket.ServiceName, &ticket.AvgMinutes)
	if err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, ticket.CompanyID, store.EventForAction("call"), ticket); err != nil {
		return models.Ticket{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) AdvanceTicket(ctx context.Context, companyID, ticketID, action string) (models.Ticket, error) {
	from, to, ok := store.TransitionFor(action)
	if !ok {
		return models.Ticket{}, store.ErrInvalidTransition
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ticket models.Ticket
	var postIDNull sql.NullString
	var postNameNull sql.NullString
	err = tx.QueryRow(ctx, `
		UPDATE tickets SET status = $1
		WHERE ticket_id = $2 AND company_id = $3 AND status = $4
		RETURNING ticket_id, num, company_id, service_id, customer_name, customer_phone,
			status, is_urgent, post_id, post_name, created_at
	`, to, ticketID, companyID, from).Scan(
		&ticket.TicketID, &ticket.Num, &ticket.CompanyID, &ticket.ServiceID,
		&ticket.CustomerName, &ticket.CustomerPhone, &ticket.Status, &ticket.IsUrgent,
		&postIDNull, &postNameNull, &ticket.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err = tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id = $1 AND company_id = $2)
			`, ticketID, companyID).Scan(&exists); err != nil {
				return models.Ticket{}, err
			}
			if exists {
				err = store.ErrInvalidTransition
			} else {
				err = store.ErrTicketNotFound
			}
		}
		return models.Ticket{}, err
	}
	ticket.PostID = nullStringPtr(postIDNull)
	ticket.PostName = nullStringPtr(postNameNull)

	err = tx.QueryRow(ctx, `
		SELECT name, avg_minutes FROM services WHERE service_id = $1
	`, ticket.ServiceID).Scan(&ticket.ServiceName, &ticket.AvgMinutes)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, companyID, store.EventForAction(action), ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) SetTicketUrgency(ctx context.Context, companyID, ticketID string, urgent bool) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var supportsUrgency bool
	err = tx.QueryRow(ctx, `
		SELECT s.supports_urgency
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.ticket_id = $1 AND t.company_id = $2
		FOR UPDATE OF t
	`, ticketID, companyID).Scan(&supportsUrgency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if urgent && !supportsUrgency {
		err = store.ErrUrgencyNotSupported
		return models.Ticket{}, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, `
		UPDATE tickets t SET is_urgent = $1
		FROM services s
		WHERE t.ticket_id = $2 AND t.company_id = $3 AND s.service_id = t.service_id
		RETURNING `+ticketColumns+`
	`, urgent, ticketID, companyID))
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, companyID, "ticket.urgency_changed", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListFinishedTickets(ctx context.Context, companyID string, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.company_id = $1 AND t.status = 'FINISHED'
		ORDER BY t.created_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) TicketStats(ctx context.Context, companyID string) (models.TicketStats, error) {
	var stats models.TicketStats
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'FINISHED'),
			COUNT(*) FILTER (WHERE status = 'PENDING')
		FROM tickets
		WHERE company_id = $1
	`, companyID)
	if err := row.Scan(&stats.Total, &stats.Finished, &stats.Pending); err != nil {
		return models.TicketStats{}, err
	}
	return stats, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, companyID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, company_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), companyID, eventType, body, time.Now().UTC())
	return err
}
