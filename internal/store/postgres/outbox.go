package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, company_id, type, payload, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var ev store.OutboxEvent
		if err := rows.Scan(&ev.EventID, &ev.CompanyID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) NotifyOffset(ctx context.Context) (time.Time, error) {
	var offset time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_event_at FROM notify_offsets WHERE worker_id = 'notify'
	`).Scan(&offset)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return offset, nil
}

func (s *Store) SetNotifyOffset(ctx context.Context, offset time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notify_offsets (worker_id, last_event_at)
		VALUES ('notify', $1)
		ON CONFLICT (worker_id) DO UPDATE SET last_event_at = EXCLUDED.last_event_at
	`, offset)
	return err
}

func (s *Store) RecordNotification(ctx context.Context, n store.Notification) error {
	if n.NotificationID == "" {
		n.NotificationID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, company_id, channel, recipient, body, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.NotificationID, n.CompanyID, n.Channel, n.Recipient, n.Body, n.Status, nullIfEmpty(n.Error), n.CreatedAt)
	return err
}
