package capturr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func demoConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		OutputDirectory: t.TempDir(),
		CheckInterval:   50 * time.Millisecond,
		Attempts:        3,
		FFmpeg:          "ffmpeg",
		Sources: []Source{
			{
				Name: "news",
				URL:  "rtsp://cam/news",
				Windows: []Window{
					{Day: time.Saturday, Start: TimeOfDay{Hour: 20}, End: TimeOfDay{Hour: 21}},
				},
			},
		},
	}
}

func TestOrchestratorStartStop(t *testing.T) {
	orch := New(demoConfig(t), nil)
	if err := orch.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := orch.Start(); err == nil {
		t.Fatalf("expected error on double start")
	}
	if got := orch.Status(); len(got) != 0 {
		t.Fatalf("status: %v", got)
	}
	if err := orch.StopRecording("news", time.Time{}); err == nil {
		t.Fatalf("expected error with nothing in flight")
	}
	orch.Stop()
}

func TestMatchAndNextWindowExposed(t *testing.T) {
	cfg := demoConfig(t)
	open := time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)
	trs := Match(open, cfg.Sources, 5*time.Second)
	if len(trs) != 1 || trs[0].Duration() != time.Hour {
		t.Fatalf("triggers: %v", trs)
	}
	next, _, ok := NextWindow(open.Add(2*time.Hour), cfg.Sources[0])
	if !ok || !next.After(open) {
		t.Fatalf("next window: %v %v", next, ok)
	}
}

func TestNewNotifier(t *testing.T) {
	cfg := demoConfig(t)
	n := NewNotifier(cfg, nil)
	if n == nil {
		t.Fatalf("nil notifier")
	}
	cfg.WebhookURL = "https://hooks.example.com/x"
	if n := NewNotifier(cfg, &http.Client{}); n == nil {
		t.Fatalf("nil webhook notifier")
	}
}

func TestNewHistorySink(t *testing.T) {
	sink, err := NewHistorySink(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("sqlite sink: %v", err)
	}
	if sink == nil {
		t.Fatalf("nil sink")
	}
	if _, err := NewHistorySink("bogus://x"); err == nil {
		t.Fatalf("expected error for unsupported DSN")
	}
}

func TestNewAPIHandler(t *testing.T) {
	orch := New(demoConfig(t), nil)
	if err := orch.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer orch.Stop()

	h := NewAPIHandler("/api", orch, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var out []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Name != "news" {
		t.Fatalf("sources: %v", out)
	}
}
