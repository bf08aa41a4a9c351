package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// Webhook posts messages as JSON to a chat or generic HTTP endpoint.
type Webhook struct {
	kind   string // slack | teams | http
	url    string
	client *http.Client
}

// NewWebhook creates a webhook sink of the given kind.
func NewWebhook(kind, url string) (*Webhook, error) {
	switch kind {
	case "slack", "teams", "http":
	default:
		return nil, fmt.Errorf("notify: unknown webhook type %q", kind)
	}
	if url == "" {
		return nil, fmt.Errorf("notify: %s webhook has no URL", kind)
	}
	return &Webhook{kind: kind, url: url, client: &http.Client{Timeout: webhookTimeout}}, nil
}

// Name implements Sink.
func (w *Webhook) Name() string { return "webhook_" + w.kind }

// Deliver implements Sink.
func (w *Webhook) Deliver(ctx context.Context, m Message) error {
	var payload any
	switch w.kind {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("*%s*\n%s", m.Subject, m.Text),
		}
	case "teams":
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": eventColor(m.Event),
			"summary":    m.Subject,
			"title":      m.Subject,
			"text":       m.Text,
		}
	default:
		payload = map[string]any{"notification": m}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return w.post(ctx, body)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func eventColor(event string) string {
	switch event {
	case EventCustomerCreated:
		return "2ECC71"
	case EventStatsComputed:
		return "3498DB"
	case EventBatchSummary:
		return "F39C12"
	default:
		return "95A5A6"
	}
}
