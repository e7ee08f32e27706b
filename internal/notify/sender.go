package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// NewSender picks the delivery backend. An http(s) URL means a webhook
// gateway; anything else falls back to the log sender.
func NewSender(kind, token string) Sender {
	if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
		return &WebhookSender{URL: kind, Token: token}
	}
	return LogSender{}
}

// WebhookSender posts the message to an SMS gateway webhook.
type WebhookSender struct {
	URL   string
	Token string
}

func (s *WebhookSender) Send(ctx context.Context, recipient, body string) error {
	payload, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("gateway rejected request")
	}
	return nil
}
