// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/stream"
)

// historyWindowSize caps how many prior turns ride along as completion
// context.
const historyWindowSize = 10

// attachmentFooterPrefix opens the synthetic footer appended to user
// content when files are attached. Regenerate strips it before reissuing
// the question.
const attachmentFooterPrefix = "\n\n[Bifogade filer: "

// SendMessage appends a user message and streams the assistant's answer
// into a placeholder message, persisting the thread when the stream
// ends. Returns ErrBusy while another response is streaming.
func (e *Engine) SendMessage(ctx context.Context, content string, attachments []model.Attachment, quoted *model.Message) error {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil
	}

	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ErrBusy
	}
	e.loading = true
	gen := e.gen

	userMsg := model.NewUserMessage(buildUserContent(content, attachments, quoted))
	userMsg.Attachments = attachments
	if e.session.Shared() && e.client.UserID() != "" {
		userMsg.SenderName = e.client.UserID()
	}

	msgs := append(e.activeMessagesLocked(), userMsg)
	e.setActiveMessagesLocked(msgs)
	question := userMsg.Content
	e.mu.Unlock()

	e.notifyChange()
	return e.completeTurn(ctx, gen, question, attachments)
}

// EditMessage replaces a user message's content, discards every message
// after it, and regenerates the assistant response. The truncation is
// destructive; the discarded tail is gone even if the regeneration
// fails.
func (e *Engine) EditMessage(ctx context.Context, messageID, newContent string) error {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ErrBusy
	}

	msgs := e.activeMessagesLocked()
	idx := model.IndexByID(msgs, messageID)
	if idx < 0 {
		e.mu.Unlock()
		return ErrMessageNotFound
	}
	if msgs[idx].Role != model.RoleUser {
		e.mu.Unlock()
		return ErrNotUserMessage
	}

	e.loading = true
	gen := e.gen

	truncated := model.CloneMessages(msgs[:idx+1])
	truncated[idx].Content = newContent
	truncated[idx].Timestamp = model.NowTimestamp()
	e.setActiveMessagesLocked(truncated)
	e.mu.Unlock()

	e.notifyChange()
	return e.completeTurn(ctx, gen, newContent, nil)
}

// Regenerate discards an assistant message and streams a fresh answer to
// the user message that preceded it.
func (e *Engine) Regenerate(ctx context.Context, messageID string) error {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ErrBusy
	}

	msgs := e.activeMessagesLocked()
	idx := model.IndexByID(msgs, messageID)
	if idx < 0 {
		e.mu.Unlock()
		return ErrMessageNotFound
	}
	if msgs[idx].Role != model.RoleAssistant {
		e.mu.Unlock()
		return ErrNotAssistantMessage
	}
	if idx == 0 || msgs[idx-1].Role != model.RoleUser {
		e.mu.Unlock()
		return ErrNoPriorUserMessage
	}

	e.loading = true
	gen := e.gen

	question := stripAttachmentFooter(msgs[idx-1].Content)
	e.setActiveMessagesLocked(model.CloneMessages(msgs[:idx]))
	e.mu.Unlock()

	e.notifyChange()
	return e.completeTurn(ctx, gen, question, nil)
}

// completeTurn appends the placeholder assistant message, streams the
// completion into it, and persists the final thread. The gen captured by
// the caller guards every write: once the engine moved on to another
// session, the stream's results are silently dropped.
func (e *Engine) completeTurn(ctx context.Context, gen uint64, question string, attachments []model.Attachment) error {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return nil
	}
	assistant := model.NewAssistantMessage()
	assistantID := assistant.ID
	msgs := append(e.activeMessagesLocked(), assistant)
	e.setActiveMessagesLocked(msgs)

	history := model.HistoryWindow(msgs[:len(msgs)-1], historyWindowSize)
	mode := e.session.Mode
	e.mu.Unlock()
	e.notifyChange()

	req := api.NewChatRequest(question, history, mode)
	req.HasAttachments = len(attachments) > 0
	for _, a := range attachments {
		if a.PreviewData != "" {
			req.Images = append(req.Images, a.PreviewData)
		}
	}

	reader, err := e.client.Chat(ctx, req)
	if err != nil {
		e.failTurn(ctx, gen, assistantID, "")
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer reader.Close()

	result, streamErr := stream.Collect(ctx, reader, func(partial string) {
		if e.applyDelta(gen, assistantID, partial) {
			e.notifyChange()
		}
	})

	if streamErr != nil {
		// Partial text survives the failure; only an empty turn gets the
		// apology.
		var se *stream.StreamError
		partial := ""
		if errors.As(streamErr, &se) {
			partial = se.Partial.Content
		}
		e.failTurn(ctx, gen, assistantID, partial)
		return streamErr
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return nil
	}
	cur := e.activeMessagesLocked()
	if i := model.IndexByID(cur, assistantID); i >= 0 {
		cur[i].Content = result.Content
		cur[i].Citations = result.Citations
		cur[i].InternalSources = result.InternalSources
	}
	e.loading = false
	e.mu.Unlock()

	e.notifyChange()
	e.persist(ctx)
	return nil
}

// applyDelta writes streamed content into the pending assistant message.
// Returns false when the result no longer belongs to the active
// conversation.
func (e *Engine) applyDelta(gen uint64, assistantID, content string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return false
	}
	msgs := e.activeMessagesLocked()
	i := model.IndexByID(msgs, assistantID)
	if i < 0 {
		return false
	}
	msgs[i].Content = content
	return true
}

// failTurn finalizes a turn whose stream failed. Accumulated text is
// kept and persisted; a turn with no text gets the apology message.
func (e *Engine) failTurn(ctx context.Context, gen uint64, assistantID, partial string) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	msgs := e.activeMessagesLocked()
	if i := model.IndexByID(msgs, assistantID); i >= 0 {
		if partial != "" {
			msgs[i].Content = partial
		} else {
			msgs[i].Content = apologyMessage
		}
	}
	e.loading = false
	e.mu.Unlock()

	e.notifier.Toast("Svaret kunde inte hämtas")
	e.notifyChange()
	e.persist(ctx)
}

// buildUserContent assembles the outgoing user message content: quoted
// text first, then the typed content, then the attachment footer.
func buildUserContent(content string, attachments []model.Attachment, quoted *model.Message) string {
	var b strings.Builder
	if quoted != nil && quoted.Content != "" {
		for _, line := range strings.Split(quoted.Content, "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(content)

	if len(attachments) > 0 {
		names := make([]string, len(attachments))
		for i, a := range attachments {
			names[i] = a.Name
		}
		b.WriteString(attachmentFooterPrefix)
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("]")
	}
	return b.String()
}
