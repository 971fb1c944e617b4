package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/capturr/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container for testing and
// returns it with its native-protocol address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(addr, "default", "capture_history")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	start := time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)
	rec := history.Record{
		Source:      "news",
		Output:      "/data/news/news_20260307200000.mp4",
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
	}

	if err := sink.Send(ctx, history.Event{Type: history.EventTrigger, OccurredAt: start, Record: rec}); err != nil {
		t.Fatalf("Failed to send trigger event: %v", err)
	}

	rec.Outcome = "timeout"
	rec.ExitCode = -1
	rec.Attempt = 3
	rec.Error = "capture timed out"
	if err := sink.Send(ctx, history.Event{Type: history.EventOutcome, OccurredAt: start.Add(time.Hour), Record: rec}); err != nil {
		t.Fatalf("Failed to send outcome event: %v", err)
	}

	// Give ClickHouse a moment to merge the inserts.
	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM capture_history WHERE source = ?", rec.Source)
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if _, err := New("invalid-host:9000", "default", "capture_history"); err == nil {
		t.Error("Expected error with invalid connection, got nil")
	}
}
