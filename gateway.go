package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

const (
	extensionInstallAttempts = 5
	extensionInstallBackoff  = 250 * time.Millisecond
)

// extensionInstallGuard serializes spatial-extension installs across every
// Gateway in the process, per SPEC_FULL.md §4.1: concurrent installs racing
// the network are collapsed into one attempt.
var extensionInstallGuard sync.Mutex

// Gateway is a thin wrapper over the embedded analytical SQL engine. It holds
// the single underlying connection and serializes all access to it behind
// mu, per SPEC_FULL.md §5 (the engine is not safe for concurrent mutation).
type Gateway struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

// OpenGateway opens the catalog database at path and ensures the spatial
// extension is installed and loaded before returning.
func OpenGateway(path string, extPath, extDir string, log *slog.Logger) (*Gateway, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	g := &Gateway{db: db, log: log}
	if err := g.ensureSpatialExtension(extPath, extDir); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

// ensureSpatialExtension loads the spatial extension, trying a plain LOAD
// first, then a locally bundled extension file, then network install with
// bounded retries. Fails with SpatialExtensionUnavailable only once every
// attempt is exhausted.
func (g *Gateway) ensureSpatialExtension(extPath, extDir string) error {
	if err := g.tryLoadSpatial(); err == nil {
		return nil
	}

	if candidate := localExtensionCandidate(extPath, extDir); candidate != "" {
		if _, err := g.db.Exec(fmt.Sprintf("LOAD '%s';", escapeIdentifier(candidate))); err == nil {
			return nil
		}
	}

	extensionInstallGuard.Lock()
	defer extensionInstallGuard.Unlock()

	// Recheck: another goroutine may have completed the install while we
	// waited on the guard.
	if err := g.tryLoadSpatial(); err == nil {
		return nil
	}

	var attempts []string
	for attempt := 1; attempt <= extensionInstallAttempts; attempt++ {
		_, err := g.db.Exec("INSTALL spatial; LOAD spatial;")
		if err == nil {
			return nil
		}
		attempts = append(attempts, fmt.Sprintf("attempt %d: %v", attempt, err))
		if attempt < extensionInstallAttempts {
			time.Sleep(extensionInstallBackoff * time.Duration(attempt))
		}
	}
	return fmt.Errorf("spatial extension unavailable after %d attempts: %v",
		extensionInstallAttempts, attempts)
}

func (g *Gateway) tryLoadSpatial() error {
	_, err := g.db.Exec("LOAD spatial;")
	return err
}

// localExtensionCandidate resolves a bundled extension file via, in order,
// the explicit path hint, the directory hint, the executable's directory,
// and the working directory.
func localExtensionCandidate(extPath, extDir string) string {
	if extPath != "" {
		if _, err := os.Stat(extPath); err == nil {
			return extPath
		}
	}
	const fileName = "spatial.duckdb_extension"
	dirs := []string{extDir}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Close releases the underlying connection.
func (g *Gateway) Close() error { return g.db.Close() }

// Exec runs a statement under the gateway's mutex.
func (g *Gateway) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db.ExecContext(ctx, query, args...)
}

// QueryRow runs a single-row query under the gateway's mutex.
func (g *Gateway) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db.QueryRowContext(ctx, query, args...)
}

// Query runs a multi-row query under the gateway's mutex. The mutex is
// released when Query returns, but the returned rows keep the single pooled
// connection busy until the caller closes them — callers must not hold rows
// open across another Gateway call or that call will block forever.
func (g *Gateway) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db.QueryContext(ctx, query, args...)
}

// WithTx runs fn inside a transaction held under the gateway's mutex for the
// whole duration, committing on success and rolling back on error or panic.
func (g *Gateway) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
