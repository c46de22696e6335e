// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nordfund/fondchat/internal/model"
)

// MarkdownExporter renders a session as Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

func (e *MarkdownExporter) FileExtension() string { return ".md" }
func (e *MarkdownExporter) MimeType() string      { return "text/markdown" }

// Export converts a session to Markdown.
func (e *MarkdownExporter) Export(sess *model.Session) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("session is nil")
	}
	if len(sess.Messages) == 0 {
		return nil, errors.New("session has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(sess.Title)))
		sb.WriteString(fmt.Sprintf("created: %s\n", sess.CreatedAt))
		sb.WriteString(fmt.Sprintf("updated: %s\n", sess.UpdatedAt))
		sb.WriteString(fmt.Sprintf("messages: %d\n", len(sess.Messages)))
		if len(sess.Branches) > 0 {
			sb.WriteString(fmt.Sprintf("branches: %d\n", len(sess.Branches)))
		}
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().UTC().Format(time.RFC3339)))
		sb.WriteString("---\n\n")
	}

	if sess.Title != "" {
		sb.WriteString("# ")
		sb.WriteString(sess.Title)
		sb.WriteString("\n\n")
	}

	for _, m := range sess.Messages {
		e.writeMessage(&sb, &m)
	}

	for _, b := range sess.Branches {
		sb.WriteString("---\n\n## Gren")
		if b.Name != "" {
			sb.WriteString(": ")
			sb.WriteString(b.Name)
		}
		sb.WriteString("\n\n")
		// The shared prefix already appears above; only the divergent
		// tail is worth printing.
		start := model.IndexByID(b.Messages, b.ParentMessageID) + 1
		for _, m := range b.Messages[start:] {
			e.writeMessage(&sb, &m)
		}
	}

	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) writeMessage(sb *strings.Builder, m *model.Message) {
	switch m.Role {
	case model.RoleUser:
		sb.WriteString("**Du")
		if m.SenderName != "" {
			sb.WriteString(" (")
			sb.WriteString(m.SenderName)
			sb.WriteString(")")
		}
		sb.WriteString("**")
	default:
		sb.WriteString("**Assistent**")
	}
	if e.options.IncludeTimestamps && m.Timestamp != "" {
		sb.WriteString(" · ")
		sb.WriteString(m.Timestamp)
	}
	sb.WriteString("\n\n")
	sb.WriteString(m.Content)
	sb.WriteString("\n\n")

	if len(m.Citations) > 0 {
		sb.WriteString("Källor:\n")
		for _, c := range m.Citations {
			if c.URL != "" {
				fmt.Fprintf(sb, "- [%s](%s)\n", c.Title, c.URL)
			} else {
				fmt.Fprintf(sb, "- %s\n", c.Title)
			}
		}
		sb.WriteString("\n")
	}
}

// escapeYAML quotes a string when it would break frontmatter.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#\"'\n") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
