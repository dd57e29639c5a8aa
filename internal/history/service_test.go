package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deskhand/deskhand/internal/testutil"
)

func TestService_Record(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	entry, err := service.Record(ctx, CreateInput{
		EventType: EventTypeDownloadCompleted,
		Filename:  "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
		Source:    "https://example.com/model.gguf",
		SizeBytes: 702400000,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if entry.ID == 0 {
		t.Error("Record() entry.ID = 0, want non-zero")
	}
	if entry.EventType != EventTypeDownloadCompleted {
		t.Errorf("EventType = %q, want %q", entry.EventType, EventTypeDownloadCompleted)
	}
	if entry.SizeBytes != 702400000 {
		t.Errorf("SizeBytes = %d, want 702400000", entry.SizeBytes)
	}
}

func TestService_ListPagination(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := service.Record(ctx, CreateInput{
			EventType: EventTypeDownloadStarted,
			Filename:  "model.gguf",
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := service.List(ctx, ListOptions{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("List() returned %d items, want 2", len(resp.Items))
	}
	if resp.TotalCount != 5 {
		t.Errorf("TotalCount = %d, want 5", resp.TotalCount)
	}
	if resp.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", resp.TotalPages)
	}

	// Newest entries come first.
	if resp.Items[0].ID <= resp.Items[1].ID {
		t.Errorf("entries not in reverse chronological order: %d then %d", resp.Items[0].ID, resp.Items[1].ID)
	}

	// Out-of-range values fall back to sane defaults.
	resp, err = service.List(ctx, ListOptions{Page: 0, PageSize: 10000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if resp.Page != 1 {
		t.Errorf("Page = %d, want 1", resp.Page)
	}
	if resp.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", resp.PageSize)
	}
}

func TestService_ListFilters(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	if err := service.LogDownloadStarted(ctx, "a.gguf", "https://example.com/a"); err != nil {
		t.Fatal(err)
	}
	if err := service.LogDownloadCompleted(ctx, "a.gguf", "https://example.com/a", 100); err != nil {
		t.Fatal(err)
	}
	if err := service.LogModelDeleted(ctx, "b.gguf"); err != nil {
		t.Fatal(err)
	}

	resp, err := service.List(ctx, ListOptions{EventType: string(EventTypeModelDeleted)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Filename != "b.gguf" {
		t.Errorf("eventType filter returned %+v, want single b.gguf entry", resp.Items)
	}

	resp, err = service.List(ctx, ListOptions{Filename: "a.gguf"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("filename filter returned %d items, want 2", len(resp.Items))
	}
}

func TestService_LogDownloadFailed(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	cause := errors.New("remote returned status 503")
	if err := service.LogDownloadFailed(ctx, "m.gguf", "https://example.com/m", cause); err != nil {
		t.Fatalf("LogDownloadFailed() error = %v", err)
	}

	resp, err := service.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("List() returned %d items, want 1", len(resp.Items))
	}
	if resp.Items[0].EventType != EventTypeDownloadFailed {
		t.Errorf("EventType = %q, want %q", resp.Items[0].EventType, EventTypeDownloadFailed)
	}
	if resp.Items[0].Error != cause.Error() {
		t.Errorf("Error = %q, want %q", resp.Items[0].Error, cause.Error())
	}
}

func TestService_Prune(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	old, err := service.Record(ctx, CreateInput{EventType: EventTypeDownloadCompleted, Filename: "old.gguf"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := service.Record(ctx, CreateInput{EventType: EventTypeDownloadCompleted, Filename: "recent.gguf"}); err != nil {
		t.Fatal(err)
	}

	if _, err := tdb.Conn.ExecContext(ctx,
		`UPDATE download_history SET created_at = datetime('now', '-30 days') WHERE id = ?`, old.ID); err != nil {
		t.Fatal(err)
	}

	removed, err := service.Prune(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d entries, want 1", removed)
	}

	resp, err := service.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Filename != "recent.gguf" {
		t.Errorf("after prune: %+v, want only recent.gguf", resp.Items)
	}
}

func TestService_DeleteAll(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	if err := service.LogModelDeleted(ctx, "m.gguf"); err != nil {
		t.Fatal(err)
	}
	if err := service.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	resp, err := service.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalCount != 0 {
		t.Errorf("TotalCount = %d after DeleteAll, want 0", resp.TotalCount)
	}
}
