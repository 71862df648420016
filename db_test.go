package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := OpenGateway("", "", "", log)
	if err != nil {
		t.Fatalf("open gateway: %v", err)
	}
	t.Cleanup(func() { g.Close() })

	if err := EnsureSchema(context.Background(), g); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return g
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	g := newTestGateway(t)
	if err := EnsureSchema(context.Background(), g); err != nil {
		t.Errorf("second EnsureSchema call should be a no-op, got error: %v", err)
	}
}

func TestInsertAndGetFile(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	f := FileRecord{
		ID:          "abc123",
		DisplayName: "roads.geojson",
		InputFormat: FormatGeoJSON,
		ByteSize:    42,
		UploadedAt:  time.Now().UTC(),
		Status:      StatusUploaded,
		StoredPath:  "./data/uploads/abc123/roads.geojson",
	}
	if err := InsertFile(ctx, g, f); err != nil {
		t.Fatalf("insert file: %v", err)
	}

	got, err := GetFile(ctx, g, "abc123")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got == nil {
		t.Fatal("expected file record, got nil")
	}
	if got.Status != StatusUploaded {
		t.Errorf("status = %q, want %q", got.Status, StatusUploaded)
	}
	if got.TableName != nil {
		t.Errorf("table_name should be nil for status=uploaded, got %v", *got.TableName)
	}
}

// TestFileStatusTransitions walks a file along the P1 happy path
// uploaded -> processing -> ready; it does not try a backward move.
func TestFileStatusTransitions(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	f := FileRecord{
		ID: "xyz789", DisplayName: "x", InputFormat: FormatGeoJSON,
		UploadedAt: time.Now().UTC(), Status: StatusUploaded, StoredPath: "p",
	}
	if err := InsertFile(ctx, g, f); err != nil {
		t.Fatal(err)
	}

	if err := SetFileProcessing(ctx, g, f.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := GetFile(ctx, g, f.ID)
	if got.Status != StatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}

	if err := SetFileReady(ctx, g, f.ID, "layer_xyz789", nil); err != nil {
		t.Fatal(err)
	}
	got, _ = GetFile(ctx, g, f.ID)
	if got.Status != StatusReady {
		t.Fatalf("status = %q, want ready", got.Status)
	}
	// P2: status=ready implies table_name is non-null.
	if got.TableName == nil || *got.TableName != "layer_xyz789" {
		t.Errorf("table_name = %v, want layer_xyz789", got.TableName)
	}
}

// TestReconcileProcessingFiles checks property P8: after reconciliation, no
// File Record remains in "processing", and scenario 6's expected message.
func TestReconcileProcessingFiles(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	f := FileRecord{
		ID: "stuck1", DisplayName: "x", InputFormat: FormatGeoJSON,
		UploadedAt: time.Now().UTC(), Status: StatusProcessing, StoredPath: "p",
	}
	if err := InsertFile(ctx, g, f); err != nil {
		t.Fatal(err)
	}

	n, err := ReconcileProcessingFiles(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row reconciled, got %d", n)
	}

	got, _ := GetFile(ctx, g, "stuck1")
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != processingReconciliationError {
		t.Errorf("error_message = %v, want %q", got.ErrorMessage, processingReconciliationError)
	}

	// Idempotent: running again should reconcile nothing further.
	n2, err := ReconcileProcessingFiles(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Errorf("second reconcile should affect 0 rows, got %d", n2)
	}
}

func TestInitializedFlag(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	initialized, err := IsInitialized(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if initialized {
		t.Error("expected not initialized on fresh schema")
	}

	if err := SetInitialized(ctx, g); err != nil {
		t.Fatal(err)
	}
	initialized, err = IsInitialized(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if !initialized {
		t.Error("expected initialized after SetInitialized")
	}
}

func TestDatasetColumnsRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	cols := []DatasetColumn{
		{NormalizedName: "name", OriginalName: "Name", Ordinal: 1, LogicalType: "VARCHAR"},
		{NormalizedName: "pop", OriginalName: "Population", Ordinal: 2, LogicalType: "BIGINT"},
	}
	if err := InsertDatasetColumns(ctx, g, "file1", cols); err != nil {
		t.Fatal(err)
	}

	got, err := GetDatasetColumns(ctx, g, "file1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(got))
	}
	if got[0].NormalizedName != "name" || got[1].NormalizedName != "pop" {
		t.Errorf("unexpected column order: %+v", got)
	}

	// Re-inserting should replace, not append.
	if err := InsertDatasetColumns(ctx, g, "file1", cols[:1]); err != nil {
		t.Fatal(err)
	}
	got, err = GetDatasetColumns(ctx, g, "file1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 column after replace, got %d", len(got))
	}
}
