// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/model"
)

// backend fakes the chat API: a scriptable SSE completion endpoint plus
// a session store that records every patch body it receives.
type backend struct {
	mu        sync.Mutex
	frames    []string // SSE data payloads per chat call
	chatGate  chan struct{}
	chatReqs  []api.ChatRequest
	saves     []map[string]any
	nextID    int
	sessions  map[string]*model.Session
	owner     string // ownerUserId returned by share join
	shareMsgs []model.Message
}

func newBackend() *backend {
	return &backend{
		frames:   []string{`{"text":"svar"}`},
		sessions: map[string]*model.Session{},
	}
}

func (b *backend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ai/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.chatReqs = append(b.chatReqs, req)
		frames := append([]string(nil), b.frames...)
		gate := b.chatGate
		b.mu.Unlock()

		if gate != nil {
			<-gate
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	mux.HandleFunc("/api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body := map[string]any{}
			json.NewDecoder(r.Body).Decode(&body)
			b.mu.Lock()
			b.saves = append(b.saves, body)
			id, _ := body["sessionId"].(string)
			if id == "" {
				b.nextID++
				id = fmt.Sprintf("sess-%d", b.nextID)
			}
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
		case http.MethodGet:
			b.mu.Lock()
			sess := b.sessions[r.URL.Query().Get("sessionId")]
			b.mu.Unlock()
			if sess == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(sess)
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	})

	mux.HandleFunc("/api/chat/sessions/share", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(api.PollResult{HasUpdates: false})
			return
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		switch req["action"] {
		case "create":
			json.NewEncoder(w).Encode(map[string]any{"shareCode": "code-xyz"})
		case "join":
			b.mu.Lock()
			resp := api.SharedSession{
				OwnerUserID: b.owner,
				Title:       "Delad analys",
				Messages:    b.shareMsgs,
				UpdatedAt:   "2026-03-01T00:00:00Z",
			}
			b.mu.Unlock()
			json.NewEncoder(w).Encode(resp)
		case "remove":
			w.WriteHeader(http.StatusOK)
		}
	})

	mux.HandleFunc("/api/ai/feedback", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (b *backend) lastSave(t *testing.T) map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.saves) == 0 {
		t.Fatal("nothing was persisted")
	}
	return b.saves[len(b.saves)-1]
}

// toastRecorder captures notifications.
type toastRecorder struct {
	mu     sync.Mutex
	toasts []string
}

func (n *toastRecorder) Toast(msg string) {
	n.mu.Lock()
	n.toasts = append(n.toasts, msg)
	n.mu.Unlock()
}
func (n *toastRecorder) Desktop(string, string) {}

func (n *toastRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.toasts)
}

func newEngine(t *testing.T, b *backend, userID string) *Engine {
	t.Helper()
	srv := b.server(t)
	client := api.NewClient(srv.URL).WithUserID(userID)
	e := New(client, WithNotifier(&toastRecorder{}))
	t.Cleanup(e.Dispose)
	return e
}

func TestSendMessageStreamsAndPersists(t *testing.T) {
	b := newBackend()
	b.frames = []string{`{"text":"NAV beräknas "}`, `{"text":"per andel."}`}
	e := newEngine(t, b, "user1")

	if err := e.SendMessage(context.Background(), "Hur beräknas NAV?", nil, nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "NAV beräknas per andel." {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
	if e.Loading() {
		t.Error("loading flag stuck after completion")
	}

	save := b.lastSave(t)
	if save["title"] != "Hur beräknas NAV?" {
		t.Errorf("persisted title = %v", save["title"])
	}
	if _, ok := save["messages"]; !ok {
		t.Error("main-thread persist missing messages")
	}
	if _, ok := save["branches"]; ok {
		t.Error("main-thread persist leaked branches")
	}

	// The server-assigned id was adopted.
	if e.Session().SessionID == "" {
		t.Error("session id not adopted from server")
	}
}

func TestSecondSendRejectedWhileStreaming(t *testing.T) {
	b := newBackend()
	gate := make(chan struct{})
	b.chatGate = gate
	e := newEngine(t, b, "user1")

	done := make(chan error, 1)
	go func() {
		done <- e.SendMessage(context.Background(), "första", nil, nil)
	}()

	waitFor(t, func() bool { return e.Loading() })
	if err := e.SendMessage(context.Background(), "andra", nil, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second send returned %v, want ErrBusy", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
}

func TestForkAndDiverge(t *testing.T) {
	b := newBackend()
	b.frames = []string{`{"text":"A1"}`}
	e := newEngine(t, b, "user1")

	if err := e.SendMessage(context.Background(), "U1", nil, nil); err != nil {
		t.Fatalf("seed send failed: %v", err)
	}
	main := e.Messages()
	a1 := main[1]

	branchID, err := e.StartBranch(context.Background(), a1.ID, "alternativ")
	if err != nil {
		t.Fatalf("StartBranch failed: %v", err)
	}
	if e.ActiveBranchID() != branchID {
		t.Error("fork did not activate the branch")
	}

	// The fork itself is durable: the branches array was persisted.
	save := b.lastSave(t)
	if _, ok := save["branches"]; !ok {
		t.Error("fork persist missing branches")
	}

	branch := e.Messages()
	if len(branch) != 2 || branch[0].ID != main[0].ID || branch[1].ID != main[1].ID {
		t.Fatalf("branch prefix differs from main: %+v", branch)
	}

	b.mu.Lock()
	b.frames = []string{`{"text":"A2"}`}
	b.mu.Unlock()
	if err := e.SendMessage(context.Background(), "U2", nil, nil); err != nil {
		t.Fatalf("branch send failed: %v", err)
	}

	branch = e.Messages()
	if len(branch) != 4 || branch[3].Content != "A2" {
		t.Fatalf("branch = %d messages, want 4 ending in A2", len(branch))
	}
	if got := e.MainMessages(); len(got) != 2 {
		t.Fatalf("main thread grew to %d messages", len(got))
	}

	// Persist routing: the branch send must have written branches only.
	save = b.lastSave(t)
	if _, ok := save["messages"]; ok {
		t.Error("branch persist leaked main-thread messages")
	}
	if _, ok := save["branches"]; !ok {
		t.Error("branch persist missing branches")
	}
}

func TestEditTruncates(t *testing.T) {
	b := newBackend()
	e := newEngine(t, b, "user1")

	e.SendMessage(context.Background(), "U1", nil, nil)
	e.SendMessage(context.Background(), "U2", nil, nil)
	msgs := e.Messages()
	if len(msgs) != 4 {
		t.Fatalf("setup produced %d messages", len(msgs))
	}

	b.mu.Lock()
	b.frames = []string{`{"text":"nytt svar"}`}
	b.mu.Unlock()
	if err := e.EditMessage(context.Background(), msgs[0].ID, "U1 ändrad"); err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}

	got := e.Messages()
	if len(got) != 2 {
		t.Fatalf("after edit: %d messages, want 2", len(got))
	}
	if got[0].ID != msgs[0].ID || got[0].Content != "U1 ändrad" {
		t.Errorf("edited message = %+v", got[0])
	}
	if got[1].Role != model.RoleAssistant || got[1].Content != "nytt svar" {
		t.Errorf("regenerated message = %+v", got[1])
	}
}

func TestEditRejectsAssistantMessage(t *testing.T) {
	b := newBackend()
	e := newEngine(t, b, "user1")
	e.SendMessage(context.Background(), "U1", nil, nil)
	msgs := e.Messages()

	err := e.EditMessage(context.Background(), msgs[1].ID, "x")
	if !errors.Is(err, ErrNotUserMessage) {
		t.Errorf("err = %v, want ErrNotUserMessage", err)
	}
	if len(e.Messages()) != 2 {
		t.Error("rejected edit mutated state")
	}
}

func TestRegenerateStripsAttachmentFooter(t *testing.T) {
	b := newBackend()
	e := newEngine(t, b, "user1")

	att := []model.Attachment{{Name: "rapport.pdf", MimeType: "application/pdf"}}
	e.SendMessage(context.Background(), "Sammanfatta rapporten", att, nil)
	msgs := e.Messages()
	if !strings.Contains(msgs[0].Content, "[Bifogade filer: rapport.pdf]") {
		t.Fatalf("attachment footer missing: %q", msgs[0].Content)
	}

	if err := e.Regenerate(context.Background(), msgs[1].ID); err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}

	b.mu.Lock()
	last := b.chatReqs[len(b.chatReqs)-1]
	b.mu.Unlock()
	if last.Question != "Sammanfatta rapporten" {
		t.Errorf("regenerated question = %q, footer not stripped", last.Question)
	}
}

func TestRegenerateValidation(t *testing.T) {
	b := newBackend()
	e := newEngine(t, b, "user1")
	e.SendMessage(context.Background(), "U1", nil, nil)
	msgs := e.Messages()

	if err := e.Regenerate(context.Background(), msgs[0].ID); !errors.Is(err, ErrNotAssistantMessage) {
		t.Errorf("regenerate user message: %v", err)
	}
	if err := e.Regenerate(context.Background(), "msg_unknown"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("regenerate unknown id: %v", err)
	}
}

func TestStreamErrorKeepsPartialText(t *testing.T) {
	b := newBackend()
	b.frames = []string{`{"text":"Hej "}`, `{"text":"där"}`, `{"error":"avbrott"}`}
	srv := b.server(t)
	toasts := &toastRecorder{}
	e := New(api.NewClient(srv.URL).WithUserID("user1"), WithNotifier(toasts))
	defer e.Dispose()

	err := e.SendMessage(context.Background(), "hallå", nil, nil)
	if err == nil {
		t.Fatal("expected stream error")
	}

	msgs := e.Messages()
	if msgs[1].Content != "Hej där" {
		t.Errorf("partial text lost: %q", msgs[1].Content)
	}
	if e.Loading() {
		t.Error("loading flag stuck after failure")
	}
	if toasts.count() == 0 {
		t.Error("no failure notification shown")
	}

	// The partial turn was persisted, not discarded.
	save := b.lastSave(t)
	if _, ok := save["messages"]; !ok {
		t.Error("partial turn not persisted")
	}
}

func TestTransportFailureShowsApology(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ai/chat" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"sessionId":"s"}`))
	}))
	defer srv.Close()

	toasts := &toastRecorder{}
	e := New(api.NewClient(srv.URL).WithUserID("user1"), WithNotifier(toasts))
	defer e.Dispose()

	if err := e.SendMessage(context.Background(), "hallå", nil, nil); err == nil {
		t.Fatal("expected transport error")
	}

	msgs := e.Messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Content, "Försök igen") {
		t.Errorf("apology missing: %+v", msgs)
	}
	if toasts.count() == 0 {
		t.Error("no failure notification shown")
	}
}

func TestSharedWriteRedirectsToOwner(t *testing.T) {
	b := newBackend()
	b.owner = "userY"
	u := model.NewUserMessage("ägarens fråga")
	u.SenderName = "userY"
	b.shareMsgs = []model.Message{u}
	e := newEngine(t, b, "userX")

	if err := e.JoinShared(context.Background(), "code-xyz"); err != nil {
		t.Fatalf("JoinShared failed: %v", err)
	}
	if got := e.Session().OwnerUserID; got != "userY" {
		t.Fatalf("owner = %q", got)
	}

	if err := e.SendMessage(context.Background(), "deltagarens svar", nil, nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	save := b.lastSave(t)
	if save["ownerUserId"] != "userY" || save["shareCode"] != "code-xyz" {
		t.Errorf("write not redirected: %v", save)
	}
	if _, ok := save["sessionId"]; ok {
		t.Error("redirected write carried a local sessionId")
	}
}

func TestSwitchingSessionsAbandonsStream(t *testing.T) {
	b := newBackend()
	gate := make(chan struct{})
	b.chatGate = gate
	e := newEngine(t, b, "user1")

	done := make(chan error, 1)
	go func() {
		done <- e.SendMessage(context.Background(), "långsam fråga", nil, nil)
	}()
	waitFor(t, func() bool { return e.Loading() })

	e.StartNewSession()
	close(gate)
	<-done

	if got := e.Messages(); len(got) != 0 {
		t.Errorf("abandoned stream leaked %d messages into the new session", len(got))
	}
	if e.Loading() {
		t.Error("loading flag set by abandoned stream")
	}
}

func TestLoadSessionReplacesState(t *testing.T) {
	b := newBackend()
	saved := model.NewSession()
	saved.SessionID = "s42"
	saved.Title = "Sparad"
	saved.Messages = []model.Message{model.NewUserMessage("gammal fråga")}
	b.sessions["s42"] = saved
	e := newEngine(t, b, "user1")

	e.SendMessage(context.Background(), "ny fråga", nil, nil)
	if err := e.LoadSession(context.Background(), "s42"); err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].Content != "gammal fråga" {
		t.Errorf("loaded messages = %+v", msgs)
	}
	if e.ActiveBranchID() != "" {
		t.Error("branch pointer survived session load")
	}
}

func TestSetFeedbackPersistsThroughRouting(t *testing.T) {
	b := newBackend()
	e := newEngine(t, b, "user1")
	e.SendMessage(context.Background(), "U1", nil, nil)
	msgs := e.Messages()

	if err := e.SetFeedback(context.Background(), msgs[1].ID, model.FeedbackPositive); err != nil {
		t.Fatalf("SetFeedback failed: %v", err)
	}
	if got := e.Messages()[1].Feedback; got != model.FeedbackPositive {
		t.Errorf("feedback = %q", got)
	}
	save := b.lastSave(t)
	if _, ok := save["messages"]; !ok {
		t.Error("feedback change not persisted")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
