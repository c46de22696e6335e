// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/nordfund/fondchat/internal/util"
)

// ===== Roles =====

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ===== Feedback =====

// Feedback is a per-message thumbs up/down verdict.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// ===== Message =====

// Citation is a public source reference attached to an assistant message.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// InternalSource is an internal knowledge-base reference attached to an
// assistant message.
type InternalSource struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Attachment is a file the user attached at send time. Content holds the
// extracted text for documents; PreviewData holds a data URI for images.
type Attachment struct {
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	Content     string `json:"content,omitempty"`
	PreviewData string `json:"previewData,omitempty"`
}

// Message is one turn in a conversation. Assistant content mutates while
// streaming; user content can be replaced by an edit, which truncates
// everything after it.
type Message struct {
	ID              string           `json:"id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	Timestamp       string           `json:"timestamp"`
	Citations       []Citation       `json:"citations,omitempty"`
	InternalSources []InternalSource `json:"internalSources,omitempty"`
	Attachments     []Attachment     `json:"attachments,omitempty"`
	Feedback        Feedback         `json:"feedback,omitempty"`

	// SenderName is set only in shared sessions, naming the participant
	// who authored a user message.
	SenderName string `json:"senderName,omitempty"`
}

// NewUserMessage creates a user message with a fresh id and timestamp.
func NewUserMessage(content string) Message {
	return Message{
		ID:        generateID("msg"),
		Role:      RoleUser,
		Content:   content,
		Timestamp: NowTimestamp(),
	}
}

// NewAssistantMessage creates an empty assistant message ready to receive
// streamed content.
func NewAssistantMessage() Message {
	return Message{
		ID:        generateID("msg"),
		Role:      RoleAssistant,
		Timestamp: NowTimestamp(),
	}
}

// Clone returns a deep copy. Slices are copied so the clone shares no
// mutable state with the original.
func (m Message) Clone() Message {
	c := m
	if m.Citations != nil {
		c.Citations = append([]Citation(nil), m.Citations...)
	}
	if m.InternalSources != nil {
		c.InternalSources = append([]InternalSource(nil), m.InternalSources...)
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return c
}

// Preview returns the message content truncated to maxLen runes, suitable
// for titles and list rows.
func (m Message) Preview(maxLen int) string {
	return util.Truncate(m.Content, maxLen)
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// IndexByID returns the index of the message with the given id, or -1.
func IndexByID(msgs []Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// ===== Context window =====

// Turn is the minimal {role, content} pair sent as completion context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryWindow returns the last max messages as turns, oldest first.
// Empty pending assistant messages are skipped.
func HistoryWindow(msgs []Message, max int) []Turn {
	turns := make([]Turn, 0, max)
	for i := len(msgs) - 1; i >= 0 && len(turns) < max; i-- {
		m := msgs[i]
		if m.Content == "" {
			continue
		}
		turns = append(turns, Turn{Role: string(m.Role), Content: m.Content})
	}
	// Collected newest-first; reverse for the wire.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}

// ===== Helpers =====

// NowTimestamp returns the current time as an RFC 3339 UTC string, the
// format the session API stores.
func NowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
