// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/stream"
)

// captureServer records the last request body and replies with the given
// JSON.
func captureServer(t *testing.T, reply string) (*httptest.Server, *map[string]any) {
	t.Helper()
	captured := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			clear(captured)
			json.NewDecoder(r.Body).Decode(&captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestSaveSessionPatchScopes(t *testing.T) {
	srv, captured := captureServer(t, `{"sessionId":"s1"}`)
	c := NewClient(srv.URL)

	// SetPinned must not carry messages, branches, title, or tags.
	_, err := c.SaveSession(context.Background(), Target{SessionID: "s1"}, SetPinned{Pinned: true})
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	body := *captured
	if body["sessionId"] != "s1" || body["pinned"] != true {
		t.Errorf("body = %v", body)
	}
	for _, forbidden := range []string{"messages", "branches", "title", "tags"} {
		if _, ok := body[forbidden]; ok {
			t.Errorf("pin patch leaked field %q", forbidden)
		}
	}
	if _, ok := body["pinnedAt"]; !ok {
		t.Error("pin patch missing pinnedAt")
	}

	// SaveBranches must not carry messages.
	_, err = c.SaveSession(context.Background(), Target{SessionID: "s1"}, SaveBranches{
		Branches: []model.Branch{{BranchID: "b1"}},
	})
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	body = *captured
	if _, ok := body["messages"]; ok {
		t.Error("branch patch leaked messages")
	}
	if _, ok := body["branches"]; !ok {
		t.Error("branch patch missing branches")
	}
}

func TestSaveSessionRedirectsToOwner(t *testing.T) {
	srv, captured := captureServer(t, `{"sessionId":"owner-session"}`)
	c := NewClient(srv.URL).WithUserID("userX")

	target := Target{
		SessionID:   "local-should-be-ignored",
		OwnerUserID: "userY",
		ShareCode:   "code123",
	}
	_, err := c.SaveSession(context.Background(), target, SaveMessages{
		Messages: []model.Message{model.NewUserMessage("hej")},
	})
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	body := *captured
	if body["ownerUserId"] != "userY" || body["shareCode"] != "code123" {
		t.Errorf("redirect fields missing: %v", body)
	}
	if _, ok := body["sessionId"]; ok {
		t.Error("redirected write must not carry the local sessionId")
	}
}

func TestSaveSessionCreateReturnsServerID(t *testing.T) {
	srv, _ := captureServer(t, `{"sessionId":"fresh-id"}`)
	c := NewClient(srv.URL)

	id, err := c.SaveSession(context.Background(), Target{}, SaveMessages{
		Messages: []model.Message{model.NewUserMessage("ny session")},
		Title:    "ny session",
	})
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if id != "fresh-id" {
		t.Errorf("id = %q, want fresh-id", id)
	}
}

func TestListSessionsPagination(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"sessions":[{"sessionId":"a"}],"lastEvaluatedKey":"next"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	page, err := c.ListSessions(context.Background(), 25, "prev-key")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if gotQuery["limit"][0] != "25" || gotQuery["startKey"][0] != "prev-key" {
		t.Errorf("query = %v", gotQuery)
	}
	if len(page.Sessions) != 1 || page.LastEvaluatedKey != "next" {
		t.Errorf("page = %+v", page)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("sessionId") {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
		case "forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"databasen svarar inte","code":"DB_DOWN"}`))
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	if _, err := c.GetSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 mapped to %v", err)
	}
	if _, err := c.GetSession(context.Background(), "forbidden"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("403 mapped to %v", err)
	}

	_, err := c.GetSession(context.Background(), "boom")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("500 mapped to %T", err)
	}
	if apiErr.Code != "DB_DOWN" || apiErr.Status != 500 {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("")
	if _, err := c.ListSessions(context.Background(), 0, ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestChatStreamsSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.Question != "Hur beräknas NAV?" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"text\":\"NAV beräknas \"}\n\n"))
		w.Write([]byte("data: {\"text\":\"per andel.\"}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	r, err := c.Chat(context.Background(), NewChatRequest("Hur beräknas NAV?", nil, ""))
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	defer r.Close()

	result, err := stream.Collect(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Content != "NAV beräknas per andel." {
		t.Errorf("content = %q", result.Content)
	}
}

func TestPollShareQuery(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"hasUpdates":true,"messages":[],"updatedAt":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.PollShare(context.Background(), "code1", "2025-12-31T00:00:00Z")
	if err != nil {
		t.Fatalf("PollShare failed: %v", err)
	}
	if gotQuery["shareCode"][0] != "code1" || gotQuery["since"][0] != "2025-12-31T00:00:00Z" {
		t.Errorf("query = %v", gotQuery)
	}
	if !result.HasUpdates || result.UpdatedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("result = %+v", result)
	}
}

func TestSendFeedbackSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Must not panic or surface the 500.
	c := NewClient(srv.URL)
	c.SendFeedback(context.Background(), "msg_1", model.FeedbackPositive, "bra svar")
}
