package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPublisher delivers content to a channel endpoint (the web and mobile
// frontends consume this shape) via an authenticated JSON POST.
type WebhookPublisher struct {
	channel  string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewWebhookPublisher creates a webhook-backed publisher for a channel.
func NewWebhookPublisher(channel, endpoint, apiKey string) *WebhookPublisher {
	return &WebhookPublisher{
		channel:  channel,
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *WebhookPublisher) Channel() string {
	return w.channel
}

type webhookResponse struct {
	ID string `json:"id"`
}

// AttemptPublish posts the resolved draft and classifies the HTTP outcome:
// 2xx success, 401/403 auth (retryable, flagged), 429 rate limited, other
// 4xx permanent, 5xx and transport failures transient.
func (w *WebhookPublisher) AttemptPublish(ctx context.Context, req *Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to marshal publish payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to build publish request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		httpReq.Header.Set("X-API-Key", w.apiKey)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, Transient(fmt.Errorf("publish request to %s failed: %w", w.channel, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out webhookResponse
		if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
			// Delivered but the endpoint returned no id; keep the success.
			return &Result{}, nil
		}
		return &Result{ExternalPostID: out.ID}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{
			Kind:      KindTransient,
			AuthError: true,
			Err:       fmt.Errorf("channel %s rejected credentials: status %d", w.channel, resp.StatusCode),
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Kind:        KindTransient,
			RateLimited: true,
			Err:         fmt.Errorf("channel %s rate limited", w.channel),
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, Permanent(fmt.Errorf("channel %s rejected content: status %d, body %q", w.channel, resp.StatusCode, truncate(string(body), 200)))

	default:
		return nil, Transient(fmt.Errorf("channel %s unavailable: status %d", w.channel, resp.StatusCode))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
