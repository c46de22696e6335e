// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Participant is a user known to be in a shared session.
type Participant struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// InvitationStatus tracks the lifecycle of a share invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDismissed InvitationStatus = "dismissed"
)

// Invitation is an out-of-band notice that a user has been invited into a
// shared session. Polled independently of any open session.
type Invitation struct {
	InvitationID string           `json:"invitationId"`
	FromUserID   string           `json:"fromUserId"`
	FromName     string           `json:"fromName,omitempty"`
	ShareCode    string           `json:"shareCode"`
	SessionTitle string           `json:"sessionTitle,omitempty"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    string           `json:"createdAt,omitempty"`
}
