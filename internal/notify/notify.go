package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "capturr/0.1"

// DefaultTimeout bounds a single webhook delivery.
const DefaultTimeout = 10 * time.Second

// Notifier delivers best-effort status messages. Implementations must be
// safe for concurrent use. A delivery failure is the caller's to log; it
// must never alter capture control flow.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// NewWebhook builds a webhook notifier posting {"text": <message>} to url.
// The client is shared so connections are pooled across notifications;
// pass nil to use a dedicated client with the default timeout. An empty
// url yields a noop notifier.
func NewWebhook(url string, client *http.Client) Notifier {
	url = strings.TrimSpace(url)
	if url == "" {
		return Nop{}
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &webhook{url: url, client: client}
}

type webhook struct {
	url    string
	client *http.Client
}

type message struct {
	Text string `json:"text"`
}

func (w *webhook) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(message{Text: text})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Nop swallows every message. Used when no webhook is configured.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }
