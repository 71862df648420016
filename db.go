package main

import (
	"context"
	"database/sql"
	"fmt"
)

// processingReconciliationError is the fixed message the Reconciler stamps
// onto any File Record it finds stuck in "processing" at startup.
const processingReconciliationError = "Server restarted during processing"

// EnsureSchema creates every Catalog Store table if absent. Idempotent.
func EnsureSchema(ctx context.Context, g *Gateway) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			input_format TEXT NOT NULL,
			byte_size BIGINT NOT NULL,
			uploaded_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			detected_crs TEXT,
			stored_path TEXT NOT NULL,
			table_name TEXT,
			error_message TEXT,
			is_public BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_columns (
			source_id TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			original_name TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			logical_type TEXT NOT NULL,
			PRIMARY KEY (source_id, normalized_name)
		)`,
		`CREATE TABLE IF NOT EXISTS published_files (
			file_id TEXT PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			published_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			expiry_date TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_columns_source ON dataset_columns (source_id)`,
	}
	for _, stmt := range stmts {
		if _, err := g.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// IsInitialized reports whether the one-time admin-creation flow has run.
func IsInitialized(ctx context.Context, g *Gateway) (bool, error) {
	var value string
	err := g.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = 'initialized'`).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read initialized flag: %w", err)
	}
	return value == "1", nil
}

// SetInitialized marks the admin-creation flow as completed.
func SetInitialized(ctx context.Context, g *Gateway) error {
	_, err := g.Exec(ctx, `INSERT OR REPLACE INTO system_settings (key, value) VALUES ('initialized', '1')`)
	if err != nil {
		return fmt.Errorf("set initialized flag: %w", err)
	}
	return nil
}

// InsertFile inserts a new File Record.
func InsertFile(ctx context.Context, g *Gateway, f FileRecord) error {
	_, err := g.Exec(ctx, `
		INSERT INTO files (id, display_name, input_format, byte_size, uploaded_at,
			status, detected_crs, stored_path, table_name, error_message, is_public)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.DisplayName, f.InputFormat, f.ByteSize, f.UploadedAt,
		f.Status, f.DetectedCRS, f.StoredPath, f.TableName, f.ErrorMessage, f.IsPublic)
	if err != nil {
		return fmt.Errorf("insert file %s: %w", f.ID, err)
	}
	return nil
}

// GetFile fetches a File Record by id.
func GetFile(ctx context.Context, g *Gateway, id string) (*FileRecord, error) {
	row := g.QueryRow(ctx, `
		SELECT id, display_name, input_format, byte_size, uploaded_at, status,
			detected_crs, stored_path, table_name, error_message, is_public
		FROM files WHERE id = ?`, id)
	f, err := scanFileRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return f, nil
}

// ListFiles returns every File Record, most-recently-uploaded first.
func ListFiles(ctx context.Context, g *Gateway) ([]FileRecord, error) {
	rows, err := g.Query(ctx, `
		SELECT id, display_name, input_format, byte_size, uploaded_at, status,
			detected_crs, stored_path, table_name, error_message, is_public
		FROM files ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var f FileRecord
	err := row.Scan(&f.ID, &f.DisplayName, &f.InputFormat, &f.ByteSize, &f.UploadedAt,
		&f.Status, &f.DetectedCRS, &f.StoredPath, &f.TableName, &f.ErrorMessage, &f.IsPublic)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// SetFileProcessing moves a File Record to "processing"; no other field is
// changed. The terminal states are set by SetFileReady and SetFileFailed.
func SetFileProcessing(ctx context.Context, g *Gateway, id string) error {
	_, err := g.Exec(ctx, `UPDATE files SET status = ? WHERE id = ?`, StatusProcessing, id)
	if err != nil {
		return fmt.Errorf("set file %s processing: %w", id, err)
	}
	return nil
}

// SetFileReady marks a File Record ready, recording its table name and CRS.
func SetFileReady(ctx context.Context, g *Gateway, id, tableName string, crs *string) error {
	_, err := g.Exec(ctx, `UPDATE files SET status = ?, table_name = ?, detected_crs = ?, error_message = NULL WHERE id = ?`,
		StatusReady, tableName, crs, id)
	if err != nil {
		return fmt.Errorf("set file %s ready: %w", id, err)
	}
	return nil
}

// SetFileFailed marks a File Record failed with the given error message.
func SetFileFailed(ctx context.Context, g *Gateway, id, errMsg string) error {
	_, err := g.Exec(ctx, `UPDATE files SET status = ?, error_message = ? WHERE id = ?`,
		StatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("set file %s failed: %w", id, err)
	}
	return nil
}

// ReconcileProcessingFiles fails every File Record left in "processing" by a
// prior, crashed process. Idempotent: running it again is a no-op once no
// records remain in that state.
func ReconcileProcessingFiles(ctx context.Context, g *Gateway) (int64, error) {
	result, err := g.Exec(ctx, `UPDATE files SET status = ?, error_message = ? WHERE status = ?`,
		StatusFailed, processingReconciliationError, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("reconcile processing files: %w", err)
	}
	return result.RowsAffected()
}

// InsertDatasetColumns replaces the Dataset Column Metadata for sourceID.
func InsertDatasetColumns(ctx context.Context, g *Gateway, sourceID string, cols []DatasetColumn) error {
	return g.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_columns WHERE source_id = ?`, sourceID); err != nil {
			return fmt.Errorf("clear dataset columns for %s: %w", sourceID, err)
		}
		for _, c := range cols {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO dataset_columns (source_id, normalized_name, original_name, ordinal, logical_type)
				VALUES (?, ?, ?, ?, ?)`,
				sourceID, c.NormalizedName, c.OriginalName, c.Ordinal, c.LogicalType)
			if err != nil {
				return fmt.Errorf("insert dataset column %s.%s: %w", sourceID, c.NormalizedName, err)
			}
		}
		return nil
	})
}

// GetDatasetColumns returns a ready dataset's property columns ordered by
// ordinal position.
func GetDatasetColumns(ctx context.Context, g *Gateway, sourceID string) ([]DatasetColumn, error) {
	rows, err := g.Query(ctx, `
		SELECT source_id, normalized_name, original_name, ordinal, logical_type
		FROM dataset_columns WHERE source_id = ? ORDER BY ordinal`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get dataset columns for %s: %w", sourceID, err)
	}
	defer rows.Close()

	var out []DatasetColumn
	for rows.Next() {
		var c DatasetColumn
		if err := rows.Scan(&c.SourceID, &c.NormalizedName, &c.OriginalName, &c.Ordinal, &c.LogicalType); err != nil {
			return nil, fmt.Errorf("scan dataset column row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertUser inserts a new administrative account.
func InsertUser(ctx context.Context, g *Gateway, u User) error {
	_, err := g.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.Username, err)
	}
	return nil
}

// GetUserByUsername fetches a user by username, or (nil, nil) if absent.
func GetUserByUsername(ctx context.Context, g *Gateway, username string) (*User, error) {
	var u User
	err := g.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return &u, nil
}

// GetUserByID fetches a user by id, or (nil, nil) if absent.
func GetUserByID(ctx context.Context, g *Gateway, id string) (*User, error) {
	var u User
	err := g.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id %s: %w", id, err)
	}
	return &u, nil
}
