package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook 以 JSON POST 投递通知。
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

type webhookPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	SentAt  string `json:"sent_at"`
}

// NewWebhook 创建 HTTP 回调投递器。
func NewWebhook(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// Name 返回渠道名称。
func (w *Webhook) Name() string { return "webhook" }

// Publish 发送通知，非 2xx 响应视为失败。
func (w *Webhook) Publish(ctx context.Context, message string) (string, error) {
	payload := webhookPayload{
		ID:      uuid.NewString(),
		Message: message,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &PublishError{Target: w.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", &PublishError{Target: w.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", &PublishError{Target: w.Name(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &PublishError{Target: w.Name(), Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return payload.ID, nil
}
