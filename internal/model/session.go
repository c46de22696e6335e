// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/nordfund/fondchat/internal/util"

// DefaultMode is the model selector sent with completion requests. The
// backend recognizes others but the dashboard only ever issues this one.
const DefaultMode = "standard"

// TitleMaxLen bounds session titles derived from the first user message.
const TitleMaxLen = 50

// Session is the persisted conversation record. Messages holds the main
// thread only; forks live in Branches.
type Session struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Mode      string    `json:"mode,omitempty"`
	Messages  []Message `json:"messages"`
	Branches  []Branch  `json:"branches,omitempty"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
	Pinned    bool      `json:"pinned,omitempty"`
	PinnedAt  string    `json:"pinnedAt,omitempty"`
	Tags      []string  `json:"tags,omitempty"`

	// Share overlay. Set only while the session is shared; OwnerUserID
	// differs from the local user when this client joined via share code.
	ShareCode   string `json:"shareCode,omitempty"`
	OwnerUserID string `json:"ownerUserId,omitempty"`
}

// NewSession creates an unsaved session. The server assigns SessionID on
// the first successful persist.
func NewSession() *Session {
	now := NowTimestamp()
	return &Session{
		Mode:      DefaultMode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps UpdatedAt.
func (s *Session) Touch() {
	s.UpdatedAt = NowTimestamp()
}

// DeriveTitle sets the title from the first user message when no title
// exists yet.
func (s *Session) DeriveTitle() {
	if s.Title != "" {
		return
	}
	for _, m := range s.Messages {
		if m.Role != RoleUser {
			continue
		}
		// Multi-line questions are titled by their first line.
		if line := util.FirstLine(m.Content); line != "" {
			s.Title = util.Truncate(line, TitleMaxLen)
			return
		}
	}
}

// Shared reports whether the session currently has a share overlay.
func (s *Session) Shared() bool {
	return s.ShareCode != ""
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = CloneMessages(s.Messages)
	c.Branches = CloneBranches(s.Branches)
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	return &c
}
