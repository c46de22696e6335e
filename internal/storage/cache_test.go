// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nordfund/fondchat/internal/model"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sess(id, title, updatedAt string, pinned bool) *model.Session {
	return &model.Session{
		SessionID: id,
		Title:     title,
		UpdatedAt: updatedAt,
		Pinned:    pinned,
		Messages:  []model.Message{model.NewUserMessage(title)},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openCache(t)

	s := sess("s1", "Fondrapport", "2026-01-02T00:00:00Z", false)
	s.Branches = []model.Branch{{BranchID: "b1", ParentMessageID: s.Messages[0].ID}}
	if err := c.Put(s); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Fondrapport" || len(got.Messages) != 1 || len(got.Branches) != 1 {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	c := openCache(t)
	if _, err := c.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestListOrderPinnedFirst(t *testing.T) {
	c := openCache(t)

	c.Put(sess("old", "äldst", "2026-01-01T00:00:00Z", false))
	c.Put(sess("new", "nyast", "2026-01-03T00:00:00Z", false))
	c.Put(sess("pin", "fäst", "2026-01-02T00:00:00Z", true))

	list, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d sessions", len(list))
	}
	want := []string{"pin", "new", "old"}
	for i, id := range want {
		if list[i].SessionID != id {
			t.Errorf("position %d = %q, want %q", i, list[i].SessionID, id)
		}
	}
}

func TestPutUpsert(t *testing.T) {
	c := openCache(t)
	c.Put(sess("s1", "före", "2026-01-01T00:00:00Z", false))
	c.Put(sess("s1", "efter", "2026-01-02T00:00:00Z", true))

	got, err := c.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "efter" || !got.Pinned {
		t.Errorf("upsert did not replace: %+v", got)
	}

	list, _ := c.List()
	if len(list) != 1 {
		t.Errorf("upsert created duplicate rows: %d", len(list))
	}
}

func TestReplace(t *testing.T) {
	c := openCache(t)
	c.Put(sess("stale", "gammal", "2026-01-01T00:00:00Z", false))

	err := c.Replace([]model.Session{
		*sess("a", "A", "2026-01-05T00:00:00Z", false),
		*sess("b", "B", "2026-01-04T00:00:00Z", false),
	})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if _, err := c.Get("stale"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("Replace kept stale rows")
	}
	list, _ := c.List()
	if len(list) != 2 || list[0].SessionID != "a" {
		t.Errorf("list = %+v", list)
	}
}

func TestDelete(t *testing.T) {
	c := openCache(t)
	c.Put(sess("s1", "t", "2026-01-01T00:00:00Z", false))

	if err := c.Delete("s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get("s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("session still present after delete")
	}
	if err := c.Delete("absent"); err != nil {
		t.Errorf("deleting absent id errored: %v", err)
	}
}

func TestClosed(t *testing.T) {
	c := openCache(t)
	c.Close()
	if err := c.Put(sess("x", "t", "", false)); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
