// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine owns the state of one open conversation.
//
// # Key Types
//
//   - Engine: the session/branch store. Holds the main thread, forked
//     branches, the active branch pointer, share state, and the loading
//     flag. Constructed per open conversation; Dispose stops the share
//     poll loop and invalidates in-flight work.
//
// Every mutation path (send, edit, regenerate, feedback) funnels through
// one persist routine that decides whether the write targets the active
// branch or the main thread, and whether it is redirected to a share
// owner's session. Centralizing that routing is what keeps branch
// isolation intact.
//
// The engine is safe for concurrent use. A second send while a response
// is streaming is rejected with ErrBusy. Switching sessions mid-stream
// abandons the in-flight result via a generation counter rather than
// aborting the network read.
package engine
