package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ptdang/stackboot/internal/history"
)

func TestSQLiteSinkFile(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	events := []history.Event{
		{
			Type:       history.EventLaunch,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "api", Tier: "0", PID: 12345, State: "starting"},
		},
		{
			Type:       history.EventStop,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "api", Tier: "0", PID: 12345, State: "stopped"},
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	row := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stack_history WHERE name = ?", "api")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 events in history, got %d", count)
	}
}

func TestSQLiteSinkInMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	e := history.Event{
		Type:       history.EventHealthDegraded,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Name: "rag", Tier: "0", State: "starting", Detail: "connection refused"},
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
