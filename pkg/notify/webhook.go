package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pulseapm/alert-engine/pkg/serializer"
)

// WebhookSink posts notification messages as JSON to a configured URL
type WebhookSink struct {
	url    string
	client *http.Client
	ser    serializer.Serializer
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(url string, ser serializer.Serializer) *WebhookSink {
	return &WebhookSink{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		ser: ser,
	}
}

func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	body, err := s.ser.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
