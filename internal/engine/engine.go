// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/collab"
	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/storage"
)

// Engine is the session/branch store for one open conversation.
type Engine struct {
	client       *api.Client
	sync         *collab.Synchronizer
	cache        *storage.Cache
	notifier     collab.Notifier
	hidden       func() bool
	mode         string
	pollInterval time.Duration

	mu             sync.Mutex
	session        *model.Session
	activeBranchID string
	participants   []model.Participant
	loading        bool

	// gen invalidates in-flight stream and persist results when the
	// conversation they belong to is no longer the active one.
	gen uint64

	onChange func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache mirrors session writes into a local cache.
func WithCache(cache *storage.Cache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithNotifier routes user-facing notices. Defaults to discarding them.
func WithNotifier(n collab.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithHiddenCheck gates desktop notifications for shared-session updates.
func WithHiddenCheck(hidden func() bool) Option {
	return func(e *Engine) { e.hidden = hidden }
}

// WithMode sets the model selector new sessions start with.
func WithMode(mode string) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithPollInterval overrides the shared-session poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// New creates an engine with a fresh, unsaved session.
func New(client *api.Client, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		notifier: collab.NopNotifier{},
		session:  model.NewSession(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mode != "" {
		e.session.Mode = e.mode
	}
	e.sync = collab.NewSynchronizer(client, e.notifier)
	if e.hidden != nil {
		e.sync.WithHiddenCheck(e.hidden)
	}
	if e.pollInterval > 0 {
		e.sync.WithInterval(e.pollInterval)
	}
	return e
}

// OnChange registers a callback invoked after every visible state
// change. Used by the UI to re-render.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

func (e *Engine) notifyChange() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Dispose invalidates in-flight work and stops the share poll loop. The
// engine must not be used afterwards.
func (e *Engine) Dispose() {
	e.mu.Lock()
	e.gen++
	e.loading = false
	e.mu.Unlock()
	e.sync.Stop()
}

// ===== Snapshots =====

// Messages returns a deep copy of the active thread (branch if one is
// active, else main).
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneMessages(e.activeMessagesLocked())
}

// MainMessages returns a deep copy of the main thread regardless of the
// active branch.
func (e *Engine) MainMessages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneMessages(e.session.Messages)
}

// Branches returns a deep copy of the branch list.
func (e *Engine) Branches() []model.Branch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneBranches(e.session.Branches)
}

// ActiveBranchID returns the active branch id, or "" on the main thread.
func (e *Engine) ActiveBranchID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeBranchID
}

// Session returns a deep copy of the current session record.
func (e *Engine) Session() *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Loading reports whether a response is currently streaming.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// activeMessagesLocked returns the live slice mutations apply to.
func (e *Engine) activeMessagesLocked() []model.Message {
	if e.activeBranchID != "" {
		if i := model.BranchByID(e.session.Branches, e.activeBranchID); i >= 0 {
			return e.session.Branches[i].Messages
		}
	}
	return e.session.Messages
}

// setActiveMessagesLocked writes the active thread back to its home.
func (e *Engine) setActiveMessagesLocked(msgs []model.Message) {
	if e.activeBranchID != "" {
		if i := model.BranchByID(e.session.Branches, e.activeBranchID); i >= 0 {
			e.session.Branches[i].Messages = msgs
			return
		}
	}
	e.session.Messages = msgs
}

// ===== Session lifecycle =====

// StartNewSession clears the in-memory conversation, branch pointer, and
// share state. Persisted sessions are untouched.
func (e *Engine) StartNewSession() {
	e.sync.Stop()
	e.mu.Lock()
	e.gen++
	e.session = model.NewSession()
	if e.mode != "" {
		e.session.Mode = e.mode
	}
	e.activeBranchID = ""
	e.participants = nil
	e.loading = false
	e.mu.Unlock()
	e.notifyChange()
}

// LoadSession fetches a saved session and makes it the active one. Any
// active branch pointer and running poll loop are cleared first; if the
// loaded session is shared, polling resumes on its share code.
func (e *Engine) LoadSession(ctx context.Context, sessionID string) error {
	e.sync.Stop()

	sess, err := e.client.GetSession(ctx, sessionID)
	if err != nil {
		e.notifier.Toast("Kunde inte öppna sessionen")
		return err
	}
	if sess.Mode == "" {
		sess.Mode = model.DefaultMode
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.session = sess
	e.activeBranchID = ""
	e.participants = nil
	e.loading = false
	shared := sess.Shared()
	shareCode := sess.ShareCode
	watermark := sess.UpdatedAt
	e.mu.Unlock()

	if shared {
		e.startPolling(gen, shareCode, watermark)
	}
	e.notifyChange()
	return nil
}

// DeleteSession removes a saved session remotely and from the local
// cache. Deleting the active session behaves like StartNewSession.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.client.DeleteSession(ctx, sessionID); err != nil {
		e.notifier.Toast("Kunde inte ta bort sessionen")
		return err
	}
	if e.cache != nil {
		e.cache.Delete(sessionID)
	}

	e.mu.Lock()
	active := e.session.SessionID == sessionID
	e.mu.Unlock()
	if active {
		e.StartNewSession()
	}
	return nil
}

// ===== Branches =====

// StartBranch forks the main thread after the given assistant message
// and switches to the new branch. The fork is persisted immediately; an
// empty-looking branch is still durable state.
func (e *Engine) StartBranch(ctx context.Context, messageID, name string) (string, error) {
	e.mu.Lock()
	idx := model.IndexByID(e.session.Messages, messageID)
	if idx < 0 {
		e.mu.Unlock()
		return "", ErrMessageNotFound
	}
	if e.session.Messages[idx].Role != model.RoleAssistant {
		e.mu.Unlock()
		return "", ErrNotAssistantMessage
	}

	branch := model.NewBranch(e.session.Messages, idx, name)
	e.session.Branches = append(e.session.Branches, branch)
	e.activeBranchID = branch.BranchID
	e.mu.Unlock()

	e.notifyChange()
	e.persist(ctx)
	return branch.BranchID, nil
}

// SwitchBranch makes the given branch the active thread.
func (e *Engine) SwitchBranch(branchID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if model.BranchByID(e.session.Branches, branchID) < 0 {
		return ErrBranchNotFound
	}
	e.activeBranchID = branchID
	return nil
}

// SwitchToMain returns to the main thread.
func (e *Engine) SwitchToMain() {
	e.mu.Lock()
	e.activeBranchID = ""
	e.mu.Unlock()
	e.notifyChange()
}

// ===== Field-scoped patches =====

// TogglePin flips the pinned flag. Local state updates only after the
// server acknowledged the patch.
func (e *Engine) TogglePin(ctx context.Context) error {
	e.mu.Lock()
	target := e.targetLocked()
	pinned := !e.session.Pinned
	e.mu.Unlock()
	if target.SessionID == "" && !target.Redirected() {
		return ErrNoSession
	}

	if _, err := e.client.SaveSession(ctx, target, api.SetPinned{Pinned: pinned}); err != nil {
		e.notifier.Toast("Kunde inte uppdatera sessionen")
		return err
	}

	e.mu.Lock()
	e.session.Pinned = pinned
	if pinned {
		e.session.PinnedAt = model.NowTimestamp()
	} else {
		e.session.PinnedAt = ""
	}
	e.mu.Unlock()
	e.updateCache()
	e.notifyChange()
	return nil
}

// Rename sets the session title after server acknowledgment.
func (e *Engine) Rename(ctx context.Context, title string) error {
	e.mu.Lock()
	target := e.targetLocked()
	e.mu.Unlock()
	if target.SessionID == "" && !target.Redirected() {
		return ErrNoSession
	}

	if _, err := e.client.SaveSession(ctx, target, api.RenameSession{Title: title}); err != nil {
		e.notifier.Toast("Kunde inte byta namn på sessionen")
		return err
	}

	e.mu.Lock()
	e.session.Title = title
	e.mu.Unlock()
	e.updateCache()
	e.notifyChange()
	return nil
}

// UpdateTags replaces the tag list after server acknowledgment.
func (e *Engine) UpdateTags(ctx context.Context, tags []string) error {
	e.mu.Lock()
	target := e.targetLocked()
	e.mu.Unlock()
	if target.SessionID == "" && !target.Redirected() {
		return ErrNoSession
	}

	if _, err := e.client.SaveSession(ctx, target, api.SetTags{Tags: tags}); err != nil {
		e.notifier.Toast("Kunde inte uppdatera taggar")
		return err
	}

	e.mu.Lock()
	e.session.Tags = append([]string(nil), tags...)
	e.mu.Unlock()
	e.updateCache()
	e.notifyChange()
	return nil
}

// ===== Feedback =====

// SetFeedback records a thumbs verdict on a message, persists the thread
// through the usual routing, and reports the verdict to telemetry.
func (e *Engine) SetFeedback(ctx context.Context, messageID string, verdict model.Feedback) error {
	e.mu.Lock()
	msgs := e.activeMessagesLocked()
	idx := model.IndexByID(msgs, messageID)
	if idx < 0 {
		e.mu.Unlock()
		return ErrMessageNotFound
	}
	msgs[idx].Feedback = verdict
	content := msgs[idx].Content
	e.mu.Unlock()

	e.notifyChange()
	e.persist(ctx)
	e.client.SendFeedback(ctx, messageID, verdict, content)
	return nil
}

// ===== Persistence =====

// targetLocked computes where writes land. Non-owner participants of a
// shared session write through {ownerUserId, shareCode} so the canonical
// document is the only one ever updated.
func (e *Engine) targetLocked() api.Target {
	if e.session.Shared() && e.session.OwnerUserID != "" && e.session.OwnerUserID != e.client.UserID() {
		return api.Target{
			OwnerUserID: e.session.OwnerUserID,
			ShareCode:   e.session.ShareCode,
		}
	}
	return api.Target{SessionID: e.session.SessionID}
}

// persist writes the active thread to the backend. While a branch is
// active only the branches collection is written; otherwise only the
// main thread. Every mutation path ends here so that routing decision
// lives in exactly one place.
func (e *Engine) persist(ctx context.Context) {
	e.mu.Lock()
	gen := e.gen
	target := e.targetLocked()

	var patch api.SessionPatch
	if e.activeBranchID != "" {
		patch = api.SaveBranches{Branches: model.CloneBranches(e.session.Branches)}
	} else {
		e.session.DeriveTitle()
		patch = api.SaveMessages{
			Messages: model.CloneMessages(e.session.Messages),
			Title:    e.session.Title,
			Mode:     e.session.Mode,
		}
	}
	e.session.Touch()
	e.mu.Unlock()

	id, err := e.client.SaveSession(ctx, target, patch)
	if err != nil {
		// In-memory state stays as the user saw it; only the save is
		// reported.
		e.notifier.Toast("Kunde inte spara sessionen")
		return
	}

	e.mu.Lock()
	if e.gen == gen && e.session.SessionID == "" && id != "" {
		e.session.SessionID = id
	}
	e.mu.Unlock()
	e.updateCache()
}

// updateCache mirrors the current session into the local cache.
func (e *Engine) updateCache() {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	sess := e.session.Clone()
	e.mu.Unlock()
	if sess.SessionID != "" {
		e.cache.Put(sess)
	}
}

// ===== Helpers =====

// stripAttachmentFooter removes the synthetic footer appended to user
// content when files were attached, so a regenerate reissues the bare
// question.
func stripAttachmentFooter(content string) string {
	if i := strings.Index(content, attachmentFooterPrefix); i >= 0 {
		return strings.TrimRight(content[:i], "\n")
	}
	return content
}
