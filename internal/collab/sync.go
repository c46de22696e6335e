// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collab

import (
	"context"
	"sync"
	"time"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/model"
)

// DefaultPollInterval is how often an open shared session asks for
// changes.
const DefaultPollInterval = 5 * time.Second

// Notifier delivers sync events to the user. Toast is a transient
// in-app notice; Desktop is an OS-level banner for background updates.
type Notifier interface {
	Toast(message string)
	Desktop(title, body string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Toast(string)           {}
func (NopNotifier) Desktop(string, string) {}

// Update is one batch of remote changes to a shared session. Messages
// replaces the local list wholesale.
type Update struct {
	Messages     []model.Message
	Participants []model.Participant
	UpdatedAt    string
}

// poller is the interface Synchronizer needs from the API client.
// Narrowed for tests.
type poller interface {
	PollShare(ctx context.Context, shareCode, since string) (*api.PollResult, error)
}

// Synchronizer owns the share polling loop. At most one loop is active
// at a time; starting a new one always tears down the old one first so
// two loops can never race on the same watermark.
type Synchronizer struct {
	client   poller
	notifier Notifier
	interval time.Duration

	// hidden reports whether the conversation is currently out of view,
	// gating desktop notifications. Nil means never hidden.
	hidden func() bool

	mu     sync.Mutex
	handle *pollHandle
}

type pollHandle struct {
	shareCode string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSynchronizer creates an idle synchronizer.
func NewSynchronizer(client poller, notifier Notifier) *Synchronizer {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Synchronizer{
		client:   client,
		notifier: notifier,
		interval: DefaultPollInterval,
	}
}

// WithInterval overrides the poll interval. Used by tests.
func (s *Synchronizer) WithInterval(d time.Duration) *Synchronizer {
	s.interval = d
	return s
}

// WithHiddenCheck sets the out-of-view probe for desktop notifications.
func (s *Synchronizer) WithHiddenCheck(hidden func() bool) *Synchronizer {
	s.hidden = hidden
	return s
}

// Active returns the share code being polled, or "" when idle.
func (s *Synchronizer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return ""
	}
	return s.handle.shareCode
}

// Start begins polling the given share code from the since watermark,
// invoking onUpdate for every batch of remote changes. Any previously
// running loop is stopped and drained first.
func (s *Synchronizer) Start(shareCode, since string, onUpdate func(Update)) {
	s.mu.Lock()
	prev := s.detachLocked()

	ctx, cancel := context.WithCancel(context.Background())
	h := &pollHandle{
		shareCode: shareCode,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.handle = h
	s.mu.Unlock()

	// Drain the old loop outside the lock so its final tick cannot
	// deadlock against us.
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go s.run(ctx, h, since, onUpdate)
}

// Stop cancels the active loop, if any, and waits for it to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	h := s.detachLocked()
	s.mu.Unlock()
	if h != nil {
		h.cancel()
		<-h.done
	}
}

func (s *Synchronizer) detachLocked() *pollHandle {
	h := s.handle
	s.handle = nil
	return h
}

func (s *Synchronizer) run(ctx context.Context, h *pollHandle, since string, onUpdate func(Update)) {
	defer close(h.done)

	watermark := since
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result, err := s.client.PollShare(ctx, h.shareCode, watermark)
		if err != nil {
			// Poll ticks are non-critical; the next tick retries.
			continue
		}
		if !result.HasUpdates {
			continue
		}

		// The watermark only advances when the server actually reported
		// changes, so a flaky empty response cannot skip updates.
		if result.UpdatedAt != "" {
			watermark = result.UpdatedAt
		}

		if ctx.Err() != nil {
			return
		}
		onUpdate(Update{
			Messages:     result.Messages,
			Participants: result.Participants,
			UpdatedAt:    result.UpdatedAt,
		})
		if s.hidden != nil && s.hidden() {
			s.notifier.Desktop("Delad session uppdaterad", "Nya meddelanden i den delade sessionen")
		}
	}
}
