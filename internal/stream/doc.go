// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reads server-sent-event completion responses.
//
// # Key Types
//
//   - Reader: parses "data: " frames off a live response body
//   - Event: one typed occurrence (delta, meta, done, error)
//   - Accumulator: folds events into the final (content, citations,
//     internalSources) triple
//   - StreamError: stream failure carrying whatever text arrived first
//
// # Usage
//
//	r := stream.NewReader(resp.Body)
//	defer r.Close()
//	result, err := stream.Collect(ctx, r, func(partial string) {
//		render(partial)
//	})
//
// A literal "[DONE]" payload ends the stream without error. Frames that
// fail to parse as JSON are skipped unless they carry a structured error
// payload, which aborts the read.
package stream
