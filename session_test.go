package main

import (
	"context"
	"testing"
	"time"
)

func TestSaveAndLoadSession(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	data := map[string]any{"user_id": "u1"}
	expires := time.Now().UTC().Add(time.Hour)
	if err := saveSession(ctx, g, "sess1", data, expires); err != nil {
		t.Fatal(err)
	}

	got, err := loadSession(ctx, g, "sess1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected session data, got nil")
	}
	if got["user_id"] != "u1" {
		t.Errorf("user_id = %v, want u1", got["user_id"])
	}
}

func TestLoadNonexistentSession(t *testing.T) {
	g := newTestGateway(t)
	got, err := loadSession(context.Background(), g, "does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for nonexistent session, got %v", got)
	}
}

func TestUpdateSessionIsUpsert(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	saveSession(ctx, g, "sess2", map[string]any{"v": float64(1)}, expires)
	saveSession(ctx, g, "sess2", map[string]any{"v": float64(2)}, expires)

	got, err := loadSession(ctx, g, "sess2")
	if err != nil {
		t.Fatal(err)
	}
	if got["v"] != float64(2) {
		t.Errorf("v = %v, want 2 (update should replace, not duplicate)", got["v"])
	}
}

func TestDeleteSession(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	saveSession(ctx, g, "sess3", map[string]any{"v": float64(1)}, expires)
	if err := deleteSession(ctx, g, "sess3"); err != nil {
		t.Fatal(err)
	}
	got, err := loadSession(ctx, g, "sess3")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %v", got)
	}
}

// TestExpiredSessionReturnsNone checks that an expired record is invisible
// to load without being purged from storage (SPEC_FULL.md §4.7).
func TestExpiredSessionReturnsNone(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	if err := saveSession(ctx, g, "sess4", map[string]any{"v": float64(1)}, past); err != nil {
		t.Fatal(err)
	}

	got, err := loadSession(ctx, g, "sess4")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for expired session, got %v", got)
	}

	var count int
	if err := g.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE id = ?`, "sess4").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expired row should not be auto-purged, found count=%d", count)
	}
}

func TestComplexSessionData(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	data := map[string]any{
		"str":  "hello",
		"num":  float64(42),
		"bool": true,
		"null": nil,
		"arr":  []any{float64(1), float64(2), float64(3)},
		"obj":  map[string]any{"nested": "value"},
	}
	if err := saveSession(ctx, g, "sess5", data, expires); err != nil {
		t.Fatal(err)
	}

	got, err := loadSession(ctx, g, "sess5")
	if err != nil {
		t.Fatal(err)
	}
	if got["str"] != "hello" || got["bool"] != true {
		t.Errorf("round-tripped data mismatch: %+v", got)
	}
}
