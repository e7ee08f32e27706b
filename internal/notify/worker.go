package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"
)

// Store is the slice of the persistence layer the worker needs: the outbox
// feed, its durable offset, and the delivery log.
type Store interface {
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
	NotifyOffset(ctx context.Context) (time.Time, error)
	SetNotifyOffset(ctx context.Context, at time.Time) error
	RecordNotification(ctx context.Context, notification store.Notification) error
}

// Sender delivers one message to one recipient. SMS in production, a log
// line in development.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// LogSender writes outgoing messages to the process log instead of an SMS
// gateway. Used when no gateway is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, recipient, body string) error {
	log.Printf("notify send recipient=%s body=%q", recipient, body)
	return nil
}

type Worker struct {
	store     Store
	sender    Sender
	batchSize int
}

func NewWorker(st Store, sender Sender, batchSize int) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if sender == nil {
		sender = LogSender{}
	}
	return &Worker{store: st, sender: sender, batchSize: batchSize}
}

// Start polls the outbox until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				log.Printf("notify scan failed: %v", err)
			}
		}
	}
}

// RunOnce drains one batch of outbox events past the persisted offset. The
// offset only advances after every event in the batch was handled, so a
// crash mid-batch redelivers rather than drops.
func (w *Worker) RunOnce(ctx context.Context) error {
	offset, err := w.store.NotifyOffset(ctx)
	if err != nil {
		return fmt.Errorf("load offset: %w", err)
	}

	events, err := w.store.ListOutboxEvents(ctx, offset, w.batchSize)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := w.handleEvent(ctx, event); err != nil {
			log.Printf("notify event=%s type=%s failed: %v", event.EventID, event.Type, err)
		}
		offset = event.CreatedAt
	}

	if err := w.store.SetNotifyOffset(ctx, offset); err != nil {
		return fmt.Errorf("save offset: %w", err)
	}
	return nil
}

func (w *Worker) handleEvent(ctx context.Context, event store.OutboxEvent) error {
	body, recipient, ok := messageFor(event)
	if !ok {
		return nil
	}
	if recipient == "" {
		return nil
	}

	notification := store.Notification{
		CompanyID: event.CompanyID,
		Channel:   "sms",
		Recipient: recipient,
		Body:      body,
		Status:    store.NotificationSent,
	}
	if err := w.sender.Send(ctx, recipient, body); err != nil {
		notification.Status = store.NotificationFailed
		notification.Error = err.Error()
		if recordErr := w.store.RecordNotification(ctx, notification); recordErr != nil {
			return recordErr
		}
		return err
	}
	return w.store.RecordNotification(ctx, notification)
}

// messageFor builds the customer-facing SMS for an outbox event. Events the
// customer does not care about return ok=false.
func messageFor(event store.OutboxEvent) (body, recipient string, ok bool) {
	var ticket models.Ticket
	if err := json.Unmarshal(event.Payload, &ticket); err != nil {
		return "", "", false
	}

	switch event.Type {
	case "ticket.created":
		return fmt.Sprintf("Votre ticket %s est enregistré. Suivez la file en ligne.", ticket.Num), ticket.CustomerPhone, true
	case "ticket.called":
		postName := "l'accueil"
		if ticket.PostName != nil && *ticket.PostName != "" {
			postName = *ticket.PostName
		}
		return fmt.Sprintf("Ticket %s: c'est votre tour, présentez-vous à %s.", ticket.Num, postName), ticket.CustomerPhone, true
	default:
		return "", "", false
	}
}
