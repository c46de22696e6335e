// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collab

import (
	"context"
	"sync"
	"time"

	"github.com/nordfund/fondchat/internal/model"
)

// DefaultInvitationInterval is how often pending invitations are fetched.
const DefaultInvitationInterval = 30 * time.Second

// invitationLister is the interface InvitationPoller needs from the API
// client.
type invitationLister interface {
	PendingInvitations(ctx context.Context) ([]model.Invitation, error)
}

// InvitationPoller watches for share invitations in the background,
// decoupled from any open session. Fetch failures are swallowed.
type InvitationPoller struct {
	client   invitationLister
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	seen   map[string]bool
}

// NewInvitationPoller creates an idle poller.
func NewInvitationPoller(client invitationLister) *InvitationPoller {
	return &InvitationPoller{
		client:   client,
		interval: DefaultInvitationInterval,
		seen:     make(map[string]bool),
	}
}

// WithInterval overrides the poll interval. Used by tests.
func (p *InvitationPoller) WithInterval(d time.Duration) *InvitationPoller {
	p.interval = d
	return p
}

// Start begins polling, invoking onInvite once per newly seen pending
// invitation. A running poller is restarted.
func (p *InvitationPoller) Start(onInvite func(model.Invitation)) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			p.tick(ctx, onInvite)
		}
	}()
}

// Stop cancels the poller and waits for it to exit.
func (p *InvitationPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *InvitationPoller) tick(ctx context.Context, onInvite func(model.Invitation)) {
	invitations, err := p.client.PendingInvitations(ctx)
	if err != nil {
		return
	}
	for _, inv := range invitations {
		if inv.Status != model.InvitationPending {
			continue
		}
		p.mu.Lock()
		dup := p.seen[inv.InvitationID]
		if !dup {
			p.seen[inv.InvitationID] = true
		}
		p.mu.Unlock()
		if !dup {
			onInvite(inv)
		}
	}
}
