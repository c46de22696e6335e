// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search filters conversation history. Both surfaces, the
// in-conversation match cycler and the session list filter, share one
// matching rule: case-insensitive substring. Nothing is persisted; every
// call recomputes from the in-memory candidate set.
package search

import (
	"strings"

	"github.com/nordfund/fondchat/internal/model"
)

// Conversation returns the ordered indices of messages whose content
// contains the query, case-insensitively. An empty query matches nothing.
func Conversation(msgs []model.Message, query string) []int {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)
	var matches []int
	for i, m := range msgs {
		if strings.Contains(strings.ToLower(m.Content), q) {
			matches = append(matches, i)
		}
	}
	return matches
}

// Cursor cycles through conversation matches with wraparound. The zero
// value is not useful; build one with NewCursor.
type Cursor struct {
	matches []int
	pos     int
}

// NewCursor wraps a match list, positioned on the first match.
func NewCursor(matches []int) *Cursor {
	return &Cursor{matches: matches}
}

// Len returns the number of matches.
func (c *Cursor) Len() int {
	return len(c.matches)
}

// Current returns the message index of the current match, or -1 when
// there are no matches.
func (c *Cursor) Current() int {
	if len(c.matches) == 0 {
		return -1
	}
	return c.matches[c.pos]
}

// Pos returns the current match ordinal, zero-based.
func (c *Cursor) Pos() int {
	return c.pos
}

// Next advances to the following match, wrapping to the first after the
// last. Returns the new current message index.
func (c *Cursor) Next() int {
	if len(c.matches) == 0 {
		return -1
	}
	c.pos = (c.pos + 1) % len(c.matches)
	return c.matches[c.pos]
}

// Prev steps back to the preceding match, wrapping to the last before
// the first. Returns the new current message index.
func (c *Cursor) Prev() int {
	if len(c.matches) == 0 {
		return -1
	}
	c.pos = (c.pos - 1 + len(c.matches)) % len(c.matches)
	return c.matches[c.pos]
}

// Sessions filters a session list by title or message content, preserving
// the input order. An empty query returns the input unchanged.
func Sessions(sessions []model.Session, query string) []model.Session {
	if query == "" {
		return sessions
	}
	q := strings.ToLower(query)
	var out []model.Session
	for _, s := range sessions {
		if sessionMatches(&s, q) {
			out = append(out, s)
		}
	}
	return out
}

func sessionMatches(s *model.Session, loweredQuery string) bool {
	if strings.Contains(strings.ToLower(s.Title), loweredQuery) {
		return true
	}
	for _, m := range s.Messages {
		if strings.Contains(strings.ToLower(m.Content), loweredQuery) {
			return true
		}
	}
	return false
}
