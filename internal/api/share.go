// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nordfund/fondchat/internal/model"
)

// ===== Share lifecycle =====

type shareRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`
	ShareCode string `json:"shareCode,omitempty"`
}

// ShareInfo is the result of creating a share.
type ShareInfo struct {
	ShareCode    string              `json:"shareCode"`
	Participants []model.Participant `json:"participants,omitempty"`
}

// CreateShare turns a private session into a shared one, returning the
// issued share code.
func (c *Client) CreateShare(ctx context.Context, sessionID string) (*ShareInfo, error) {
	var info ShareInfo
	req := shareRequest{Action: "create", SessionID: sessionID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/sessions/share", nil, req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SharedSession is the adopted state when joining a share as a
// participant.
type SharedSession struct {
	OwnerUserID  string              `json:"ownerUserId"`
	Title        string              `json:"title,omitempty"`
	Mode         string              `json:"mode,omitempty"`
	Messages     []model.Message     `json:"messages"`
	Participants []model.Participant `json:"participants,omitempty"`
	UpdatedAt    string              `json:"updatedAt,omitempty"`
}

// JoinShare fetches the shared session behind a share code. This is the
// only call that can hand back an OwnerUserID different from the local
// user.
func (c *Client) JoinShare(ctx context.Context, shareCode string) (*SharedSession, error) {
	var sess SharedSession
	req := shareRequest{Action: "join", ShareCode: shareCode}
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/sessions/share", nil, req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// RemoveShare revokes a share code, returning the session to private.
func (c *Client) RemoveShare(ctx context.Context, shareCode string) error {
	req := shareRequest{Action: "remove", ShareCode: shareCode}
	return c.doJSON(ctx, http.MethodPost, "/api/chat/sessions/share", nil, req, nil)
}

// ===== Polling =====

// PollResult is one tick's answer to "what changed since the watermark".
// Messages and Participants are populated only when HasUpdates is true.
type PollResult struct {
	HasUpdates   bool                `json:"hasUpdates"`
	Messages     []model.Message     `json:"messages,omitempty"`
	Participants []model.Participant `json:"participants,omitempty"`
	UpdatedAt    string              `json:"updatedAt,omitempty"`
}

// PollShare asks for changes to a shared session since the given
// watermark timestamp.
func (c *Client) PollShare(ctx context.Context, shareCode, since string) (*PollResult, error) {
	query := url.Values{"shareCode": {shareCode}}
	if since != "" {
		query.Set("since", since)
	}
	var result PollResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/sessions/share", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ===== Invitations =====

type invitationRequest struct {
	Action       string `json:"action"`
	InvitationID string `json:"invitationId,omitempty"`
	ToUserID     string `json:"toUserId,omitempty"`
	ShareCode    string `json:"shareCode,omitempty"`
	SessionTitle string `json:"sessionTitle,omitempty"`
}

type invitationList struct {
	Invitations []model.Invitation `json:"invitations"`
}

// Invite notifies another user that they may join a shared session.
func (c *Client) Invite(ctx context.Context, toUserID, shareCode, sessionTitle string) error {
	req := invitationRequest{
		Action:       "create",
		ToUserID:     toUserID,
		ShareCode:    shareCode,
		SessionTitle: sessionTitle,
	}
	return c.doJSON(ctx, http.MethodPost, "/api/chat/invitations", nil, req, nil)
}

// PendingInvitations lists invitations awaiting this user's response.
func (c *Client) PendingInvitations(ctx context.Context) ([]model.Invitation, error) {
	var list invitationList
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/invitations", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Invitations, nil
}

// AcceptInvitation marks an invitation accepted server-side. The caller
// performs the actual JoinShare separately.
func (c *Client) AcceptInvitation(ctx context.Context, invitationID string) error {
	req := invitationRequest{Action: "accept", InvitationID: invitationID}
	return c.doJSON(ctx, http.MethodPost, "/api/chat/invitations", nil, req, nil)
}

// DismissInvitation marks an invitation dismissed without joining.
func (c *Client) DismissInvitation(ctx context.Context, invitationID string) error {
	req := invitationRequest{Action: "dismiss", InvitationID: invitationID}
	return c.doJSON(ctx, http.MethodPost, "/api/chat/invitations", nil, req, nil)
}
