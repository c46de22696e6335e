// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage caches session records locally so the sidebar history
// works offline and renders before the remote list arrives. The remote
// session API stays authoritative; this cache is refreshed from it and
// never pushed back.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nordfund/fondchat/internal/model"
)

var (
	ErrClosed          = errors.New("session cache closed")
	ErrSessionNotFound = errors.New("session not in cache")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	pinned     INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL DEFAULT '',
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_order ON sessions (pinned DESC, updated_at DESC);
`

// Cache is a local sqlite mirror of the saved session list.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Put stores or replaces one session.
func (c *Cache) Put(sess *model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}
	if sess.SessionID == "" {
		return errors.New("session has no id")
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	pinned := 0
	if sess.Pinned {
		pinned = 1
	}
	_, err = c.db.Exec(
		`INSERT INTO sessions (session_id, title, pinned, updated_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			pinned = excluded.pinned,
			updated_at = excluded.updated_at,
			payload = excluded.payload`,
		sess.SessionID, sess.Title, pinned, sess.UpdatedAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Replace swaps the whole cache contents for the given list, typically a
// freshly fetched remote page set.
func (c *Cache) Replace(sessions []model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	for i := range sessions {
		sess := &sessions[i]
		if sess.SessionID == "" {
			continue
		}
		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		pinned := 0
		if sess.Pinned {
			pinned = 1
		}
		if _, err := tx.Exec(
			"INSERT INTO sessions (session_id, title, pinned, updated_at, payload) VALUES (?, ?, ?, ?, ?)",
			sess.SessionID, sess.Title, pinned, sess.UpdatedAt, string(payload),
		); err != nil {
			return fmt.Errorf("failed to store session: %w", err)
		}
	}
	return tx.Commit()
}

// Get loads one session by id.
func (c *Cache) Get(sessionID string) (*model.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrClosed
	}

	var payload string
	err := c.db.QueryRow("SELECT payload FROM sessions WHERE session_id = ?", sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// List returns all cached sessions, pinned first, then most recently
// updated.
func (c *Cache) List() ([]model.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.Query("SELECT payload FROM sessions ORDER BY pinned DESC, updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var sess model.Session
		if err := json.Unmarshal([]byte(payload), &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Delete removes one session from the cache. Deleting an absent id is
// not an error.
func (c *Cache) Delete(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}
	if _, err := c.db.Exec("DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
