// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the fondchat backend.
//
// It covers the five remote surfaces the conversation engine consumes:
//
//   - POST /api/ai/chat: completion requests, streamed as SSE
//   - /api/chat/sessions: session list/fetch/patch/delete
//   - /api/chat/sessions/share: share-code issuance, join, removal, polling
//   - /api/chat/invitations: share invitations
//   - /api/ai/parse-file, generate-*, summarize, feedback: document helpers
//
// Session writes use tagged patch variants (SaveMessages, SaveBranches,
// RenameSession, SetPinned, SetTags) so the server's field-scoped partial
// update semantics are explicit at every call site.
package api
