package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookPostsTextPayload(t *testing.T) {
	var (
		gotBody        map[string]string
		gotContentType string
		gotUA          string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, nil)
	if err := n.Send(context.Background(), "Recorded news -> /data/news.mp4"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody["text"] != "Recorded news -> /data/news.mp4" {
		t.Fatalf("payload: %v", gotBody)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type: %q", gotContentType)
	}
	if !strings.HasPrefix(gotUA, "capturr/") {
		t.Fatalf("user agent: %q", gotUA)
	}
}

func TestWebhookAccepts2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	if err := NewWebhook(srv.URL, nil).Send(context.Background(), "x"); err != nil {
		t.Fatalf("202 should succeed: %v", err)
	}
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	err := NewWebhook(srv.URL, nil).Send(context.Background(), "x")
	if err == nil {
		t.Fatalf("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestWebhookUnreachable(t *testing.T) {
	n := NewWebhook("http://127.0.0.1:1/hook", &http.Client{Timeout: time.Second})
	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestWebhookRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := NewWebhook(srv.URL, nil).Send(ctx, "x"); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestEmptyURLIsNop(t *testing.T) {
	n := NewWebhook("   ", nil)
	if _, ok := n.(Nop); !ok {
		t.Fatalf("expected noop notifier, got %T", n)
	}
	if err := n.Send(context.Background(), "x"); err != nil {
		t.Fatalf("noop send: %v", err)
	}
}

func TestMessages(t *testing.T) {
	if got := CaptureSucceeded("news", "/d/n.mp4", 1); !strings.Contains(got, "news") || strings.Contains(got, "attempt") {
		t.Fatalf("first-attempt success message: %q", got)
	}
	if got := CaptureSucceeded("news", "/d/n.mp4", 3); !strings.Contains(got, "attempt 3") {
		t.Fatalf("retry success message: %q", got)
	}
	if got := RetriesExhausted("news", 3, errors.New("exit 1")); !strings.Contains(got, "3 attempts") {
		t.Fatalf("exhausted message: %q", got)
	}
	start := time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)
	if got := NoMatchingWindow("news", start); !strings.Contains(got, "2026-03-07T20:00:00Z") {
		t.Fatalf("mismatch message: %q", got)
	}
	if got := CaptureCanceled("news", "/d/n.mp4"); !strings.Contains(got, "/d/n.mp4") {
		t.Fatalf("canceled message: %q", got)
	}
}
