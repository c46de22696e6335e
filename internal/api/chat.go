// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/stream"
)

// ChatRequest is the body for the completion endpoint. Question and
// Message carry the same value; the backend reads whichever it was
// deployed with.
type ChatRequest struct {
	Question       string       `json:"question"`
	Message        string       `json:"message"`
	History        []model.Turn `json:"history"`
	Mode           string       `json:"mode"`
	Images         []string     `json:"images,omitempty"`
	HasAttachments bool         `json:"hasAttachments,omitempty"`
	Stream         bool         `json:"stream"`
}

// NewChatRequest builds a streaming completion request for the given
// question and prior context.
func NewChatRequest(question string, history []model.Turn, mode string) ChatRequest {
	if mode == "" {
		mode = model.DefaultMode
	}
	return ChatRequest{
		Question: question,
		Message:  question,
		History:  history,
		Mode:     mode,
		Stream:   true,
	}
}

// Chat issues a streaming completion request and returns a reader over
// the SSE body. The caller must Close the reader. Uses the timeout-free
// streaming client; cancel via ctx.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*stream.Reader, error) {
	req.Stream = true
	endpoint, err := c.endpoint("/api/ai/chat", nil)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return stream.NewReader(resp.Body), nil
}

// ChatAnswer is the non-streaming completion response. The backend has
// shipped all three content field names at different times.
type ChatAnswer struct {
	Answer     string           `json:"answer"`
	Response   string           `json:"response"`
	Content    string           `json:"content"`
	Citations  []model.Citation `json:"citations,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
}

// Text returns whichever content field the backend populated.
func (a *ChatAnswer) Text() string {
	switch {
	case a.Answer != "":
		return a.Answer
	case a.Response != "":
		return a.Response
	default:
		return a.Content
	}
}

// ChatOnce issues a non-streaming completion request.
func (c *Client) ChatOnce(ctx context.Context, req ChatRequest) (*ChatAnswer, error) {
	req.Stream = false
	var answer ChatAnswer
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai/chat", nil, req, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// ===== File parsing =====

// ParsedFile is the extraction result for an uploaded file.
type ParsedFile struct {
	Content string `json:"content"`
}

// ParseFile uploads a file for text extraction. Image files come back as
// a vision-ready placeholder rather than extracted text.
func (c *Client) ParseFile(ctx context.Context, name string, content io.Reader) (*ParsedFile, error) {
	endpoint, err := c.endpoint("/api/ai/parse-file", nil)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parse-file request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var parsed ParsedFile
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &parsed, nil
}

// ===== Summaries =====

type summarizeRequest struct {
	Messages []model.Turn `json:"messages"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize asks the backend for a short summary of the conversation.
func (c *Client) Summarize(ctx context.Context, turns []model.Turn) (string, error) {
	var resp summarizeResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/ai/summarize", nil, summarizeRequest{Messages: turns}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// ===== Feedback =====

type feedbackRequest struct {
	MessageID string `json:"messageId"`
	Verdict   string `json:"verdict"`
	Content   string `json:"content,omitempty"`
}

// SendFeedback reports a thumbs verdict for a message. Fire and forget:
// rate-limited locally and never returns transport errors to the caller.
func (c *Client) SendFeedback(ctx context.Context, messageID string, verdict model.Feedback, content string) {
	if !c.feedbackLimiter.Allow() {
		return
	}
	req := feedbackRequest{MessageID: messageID, Verdict: string(verdict), Content: content}
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai/feedback", nil, req, nil); err != nil && c.verbose {
		log.Printf("api: feedback dropped: %v", err)
	}
}
