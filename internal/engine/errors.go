// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "errors"

var (
	// ErrBusy rejects a send while a response is already streaming.
	ErrBusy = errors.New("a response is already streaming")

	// ErrMessageNotFound indicates the id is not in the active thread.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotUserMessage rejects editing anything but a user message.
	ErrNotUserMessage = errors.New("only user messages can be edited")

	// ErrNotAssistantMessage rejects forking or regenerating from a user
	// message.
	ErrNotAssistantMessage = errors.New("operation requires an assistant message")

	// ErrNoPriorUserMessage rejects regenerating an assistant message
	// that no user message precedes.
	ErrNoPriorUserMessage = errors.New("no user message precedes this response")

	// ErrBranchNotFound indicates an unknown branch id.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrNoSession indicates an operation that needs a saved session was
	// called before the first persist assigned an id.
	ErrNoSession = errors.New("session not saved yet")

	// ErrNotShared indicates a share operation on a private session.
	ErrNotShared = errors.New("session is not shared")
)

// apologyMessage replaces a pending assistant message when the backend
// could not be reached at all. Matches the dashboard's user-facing
// language.
const apologyMessage = "Jag kunde tyvärr inte svara just nu. Försök igen om en liten stund."
