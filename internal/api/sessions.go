// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nordfund/fondchat/internal/model"
)

// ===== Targets =====

// Target identifies which session document a write lands on. For a
// private session only SessionID is set. For a shared session opened by
// a non-owner, OwnerUserID and ShareCode route the write to the owner's
// canonical document instead of creating a new session.
type Target struct {
	SessionID   string
	OwnerUserID string
	ShareCode   string
}

// Redirected reports whether the write goes through the share overlay.
func (t Target) Redirected() bool {
	return t.OwnerUserID != "" && t.ShareCode != ""
}

// ===== Patches =====

// SessionPatch is one field-scoped session update. Each variant writes
// exactly the fields it names; the server leaves everything else alone.
type SessionPatch interface {
	apply(body map[string]any)
}

// SaveMessages replaces the main-thread message list. Title is included
// when deriving one for a new session.
type SaveMessages struct {
	Messages []model.Message
	Title    string
	Mode     string
}

func (p SaveMessages) apply(body map[string]any) {
	body["messages"] = p.Messages
	if p.Title != "" {
		body["title"] = p.Title
	}
	if p.Mode != "" {
		body["mode"] = p.Mode
	}
}

// SaveBranches replaces the branches collection.
type SaveBranches struct {
	Branches []model.Branch
}

func (p SaveBranches) apply(body map[string]any) {
	if p.Branches == nil {
		body["branches"] = []model.Branch{}
		return
	}
	body["branches"] = p.Branches
}

// RenameSession sets the title.
type RenameSession struct {
	Title string
}

func (p RenameSession) apply(body map[string]any) {
	body["title"] = p.Title
}

// SetPinned sets the pinned flag, recording the pin time server-side.
type SetPinned struct {
	Pinned bool
}

func (p SetPinned) apply(body map[string]any) {
	body["pinned"] = p.Pinned
	if p.Pinned {
		body["pinnedAt"] = model.NowTimestamp()
	}
}

// SetTags replaces the tag list.
type SetTags struct {
	Tags []string
}

func (p SetTags) apply(body map[string]any) {
	if p.Tags == nil {
		body["tags"] = []string{}
		return
	}
	body["tags"] = p.Tags
}

// ===== Operations =====

type saveResponse struct {
	SessionID string `json:"sessionId"`
}

// SaveSession applies one patch to the targeted session. A target with
// an empty SessionID and no redirect creates a new session; the returned
// id is the server-assigned one (or the target's own id when updating).
func (c *Client) SaveSession(ctx context.Context, target Target, patch SessionPatch) (string, error) {
	body := map[string]any{
		"updatedAt": model.NowTimestamp(),
	}
	if target.Redirected() {
		body["ownerUserId"] = target.OwnerUserID
		body["shareCode"] = target.ShareCode
	} else if target.SessionID != "" {
		body["sessionId"] = target.SessionID
	}
	patch.apply(body)

	var resp saveResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/sessions", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.SessionID != "" {
		return resp.SessionID, nil
	}
	return target.SessionID, nil
}

// SessionPage is one page of the session list.
type SessionPage struct {
	Sessions         []model.Session `json:"sessions"`
	LastEvaluatedKey string          `json:"lastEvaluatedKey,omitempty"`
}

// ListSessions fetches one page of saved sessions. Pass the previous
// page's LastEvaluatedKey as startKey to continue; empty means first page.
func (c *Client) ListSessions(ctx context.Context, limit int, startKey string) (*SessionPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if startKey != "" {
		query.Set("startKey", startKey)
	}
	var page SessionPage
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/sessions", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetSession fetches one session by id, including branches.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	query := url.Values{"sessionId": {sessionID}}
	var sess model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/sessions", query, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session permanently.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	query := url.Values{"sessionId": {sessionID}}
	return c.doJSON(ctx, http.MethodDelete, "/api/chat/sessions", query, nil, nil)
}
