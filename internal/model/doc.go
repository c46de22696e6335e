// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the conversation data types for fondchat.
//
// # Key Types
//
//   - Message: a single user or assistant turn, with optional citations,
//     internal knowledge sources, attachments, and feedback
//   - Branch: a named fork of the conversation seeded from the main thread
//   - Session: the persisted conversation record (main thread plus branches)
//   - Participant, Invitation: shared-session collaboration records
//
// # Usage
//
//	msg := model.NewUserMessage("Hur beräknas NAV?")
//	sess := model.NewSession()
//	sess.Messages = append(sess.Messages, msg)
//	sess.Touch()
//
// All wire-facing structs carry camelCase JSON tags matching the session
// API contract. Timestamps are RFC 3339 strings so records round-trip
// byte-identically through the backend.
package model
