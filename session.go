package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// sessionCookieName is the cookie the HTTP layer reads/writes for the
// authenticated session id.
const sessionCookieName = "mapflow_session"

const sessionTTL = 24 * time.Hour

// newSessionID generates an opaque session identifier. Unlike file ids
// (6 hex chars, deliberately short), sessions use a wider random value since
// they function as bearer credentials.
func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// saveSession upserts a session record holding data, expiring at expiresAt.
func saveSession(ctx context.Context, g *Gateway, id string, data map[string]any, expiresAt time.Time) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	_, err = g.Exec(ctx, `INSERT OR REPLACE INTO sessions (id, data, expiry_date) VALUES (?, ?, ?)`,
		id, blob, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// loadSession returns the session's data, or (nil, nil) if the session is
// absent or has expired. Expired records are NOT deleted here — they remain
// in storage, simply invisible to load, per SPEC_FULL.md §4.7.
func loadSession(ctx context.Context, g *Gateway, id string) (map[string]any, error) {
	var blob []byte
	var expiry time.Time
	err := g.QueryRow(ctx, `SELECT data, expiry_date FROM sessions WHERE id = ?`, id).Scan(&blob, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if expiry.Before(time.Now().UTC()) {
		return nil, nil
	}

	var data map[string]any
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return data, nil
}

// deleteSession removes a session record outright (used on logout).
func deleteSession(ctx context.Context, g *Gateway, id string) error {
	_, err := g.Exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
