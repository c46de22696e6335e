// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package collab keeps shared sessions in sync.
//
// # Key Types
//
//   - Synchronizer: at most one polling loop per process, keyed by share
//     code; replaces the local message list wholesale when the server
//     reports updates
//   - InvitationPoller: independent background poll of pending share
//     invitations
//   - Notifier: how sync events reach the user (toast, desktop banner)
//
// Poll tick failures are swallowed; the next tick retries naturally.
// There is no conflict resolution: last poll wins.
package collab
