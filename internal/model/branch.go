// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Branch is a fork of the conversation. Its message list is seeded as a
// deep copy of the main thread up to and including the parent message,
// then diverges independently.
type Branch struct {
	BranchID        string    `json:"branchId"`
	Name            string    `json:"name,omitempty"`
	ParentMessageID string    `json:"parentMessageId"`
	Messages        []Message `json:"messages"`
	CreatedAt       string    `json:"createdAt"`
}

// NewBranch forks the given main-thread messages after the message at
// parentIdx. The prefix is deep-copied so the branch shares no mutable
// message objects with the main thread.
func NewBranch(main []Message, parentIdx int, name string) Branch {
	return Branch{
		BranchID:        generateID("branch"),
		Name:            name,
		ParentMessageID: main[parentIdx].ID,
		Messages:        CloneMessages(main[:parentIdx+1]),
		CreatedAt:       NowTimestamp(),
	}
}

// Clone returns a deep copy of the branch.
func (b Branch) Clone() Branch {
	c := b
	c.Messages = CloneMessages(b.Messages)
	return c
}

// CloneBranches deep-copies a branch slice.
func CloneBranches(branches []Branch) []Branch {
	if branches == nil {
		return nil
	}
	out := make([]Branch, len(branches))
	for i, b := range branches {
		out[i] = b.Clone()
	}
	return out
}

// BranchByID returns the index of the branch with the given id, or -1.
func BranchByID(branches []Branch, id string) int {
	for i, b := range branches {
		if b.BranchID == id {
			return i
		}
	}
	return -1
}
