// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"

	"github.com/nordfund/fondchat/internal/collab"
	"github.com/nordfund/fondchat/internal/model"
)

// StartSharing turns the current session into a shared one and begins
// polling for remote changes. An unsaved session is persisted first so
// the server has a document to issue a share code for.
func (e *Engine) StartSharing(ctx context.Context) (string, error) {
	e.mu.Lock()
	sessionID := e.session.SessionID
	e.mu.Unlock()

	if sessionID == "" {
		e.persist(ctx)
		e.mu.Lock()
		sessionID = e.session.SessionID
		e.mu.Unlock()
		if sessionID == "" {
			return "", ErrNoSession
		}
	}

	info, err := e.client.CreateShare(ctx, sessionID)
	if err != nil {
		e.notifier.Toast("Kunde inte dela sessionen")
		return "", err
	}

	e.mu.Lock()
	e.session.ShareCode = info.ShareCode
	e.session.OwnerUserID = e.client.UserID()
	e.participants = info.Participants
	gen := e.gen
	watermark := e.session.UpdatedAt
	e.mu.Unlock()

	e.startPolling(gen, info.ShareCode, watermark)
	e.notifyChange()
	return info.ShareCode, nil
}

// StopSharing revokes the share code, clears the share overlay, and
// stops polling. Only meaningful on the owner's side; the server rejects
// removal by participants.
func (e *Engine) StopSharing(ctx context.Context) error {
	e.mu.Lock()
	shareCode := e.session.ShareCode
	e.mu.Unlock()
	if shareCode == "" {
		return ErrNotShared
	}

	// The loop must die before the overlay is cleared so a late tick
	// cannot resurrect stale state.
	e.sync.Stop()

	if err := e.client.RemoveShare(ctx, shareCode); err != nil {
		e.notifier.Toast("Kunde inte avsluta delningen")
		return err
	}

	e.mu.Lock()
	e.session.ShareCode = ""
	e.session.OwnerUserID = ""
	e.participants = nil
	e.mu.Unlock()
	e.notifyChange()
	return nil
}

// JoinShared adopts the session behind a share code as the active
// conversation and starts polling. This is the only path that can leave
// OwnerUserID pointing at someone other than the local user; every
// persist afterwards is redirected to that owner's document.
func (e *Engine) JoinShared(ctx context.Context, shareCode string) error {
	e.sync.Stop()

	shared, err := e.client.JoinShare(ctx, shareCode)
	if err != nil {
		e.notifier.Toast("Kunde inte gå med i delad session")
		return err
	}

	sess := model.NewSession()
	sess.Title = shared.Title
	if shared.Mode != "" {
		sess.Mode = shared.Mode
	}
	sess.Messages = shared.Messages
	sess.ShareCode = shareCode
	sess.OwnerUserID = shared.OwnerUserID
	if shared.UpdatedAt != "" {
		sess.UpdatedAt = shared.UpdatedAt
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.session = sess
	e.activeBranchID = ""
	e.loading = false
	e.participants = shared.Participants
	watermark := sess.UpdatedAt
	e.mu.Unlock()

	e.startPolling(gen, shareCode, watermark)
	e.notifyChange()
	return nil
}

// AcceptInvitation joins the invitation's share and marks it accepted.
// The accept call is fire and forget; a failure does not undo the join.
func (e *Engine) AcceptInvitation(ctx context.Context, inv model.Invitation) error {
	if err := e.JoinShared(ctx, inv.ShareCode); err != nil {
		return err
	}
	e.client.AcceptInvitation(ctx, inv.InvitationID)
	return nil
}

// Invite sends a share invitation for the current session.
func (e *Engine) Invite(ctx context.Context, toUserID string) error {
	e.mu.Lock()
	shareCode := e.session.ShareCode
	title := e.session.Title
	e.mu.Unlock()
	if shareCode == "" {
		return ErrNotShared
	}
	if err := e.client.Invite(ctx, toUserID, shareCode, title); err != nil {
		e.notifier.Toast("Kunde inte skicka inbjudan")
		return err
	}
	return nil
}

// Participants returns the known members of the active share.
func (e *Engine) Participants() []model.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Participant(nil), e.participants...)
}

// startPolling wires the synchronizer to the current conversation. The
// captured gen drops updates that arrive after the engine switched away.
func (e *Engine) startPolling(gen uint64, shareCode, watermark string) {
	e.sync.Start(shareCode, watermark, func(u collab.Update) {
		e.applyRemote(gen, u)
	})
}

// applyRemote replaces the main thread with a remote snapshot. Wholesale
// replacement is the documented merge strategy: the last poll wins, even
// over unsent local edits.
func (e *Engine) applyRemote(gen uint64, u collab.Update) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	if u.Messages != nil {
		e.session.Messages = u.Messages
	}
	if u.Participants != nil {
		e.participants = u.Participants
	}
	if u.UpdatedAt != "" {
		e.session.UpdatedAt = u.UpdatedAt
	}
	e.mu.Unlock()
	e.notifyChange()
}
