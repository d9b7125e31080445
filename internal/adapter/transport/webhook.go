// Package transport delivers replies to the messaging channel.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"insurebot-core/internal/domain/entity"

	"github.com/google/uuid"
)

type outboundMessage struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// WebhookSender posts each reply as JSON to the channel gateway. Failures
// are reported in the result, never returned as errors.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, userID, text string) entity.SendResult {
	msg := outboundMessage{ID: uuid.NewString(), UserID: userID, Text: text}
	body, err := json.Marshal(msg)
	if err != nil {
		return entity.SendResult{Error: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return entity.SendResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return entity.SendResult{ID: msg.ID, Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return entity.SendResult{ID: msg.ID, Error: fmt.Sprintf("gateway responded %d", resp.StatusCode)}
	}
	return entity.SendResult{Success: true, ID: msg.ID}
}
