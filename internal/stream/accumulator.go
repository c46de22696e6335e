// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/nordfund/fondchat/internal/model"
)

// Result is the final outcome of a completed stream.
type Result struct {
	Content         string
	Citations       []model.Citation
	InternalSources []model.InternalSource
}

// StreamError is returned when a stream fails after producing some text.
// Partial holds everything accumulated before the failure so callers can
// keep it rather than discard the turn.
type StreamError struct {
	Partial Result
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed after %d chars: %v", len(e.Partial.Content), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Accumulator folds stream events into a Result. A done frame's citations
// list, when present, overrides anything a meta frame delivered earlier.
type Accumulator struct {
	content         strings.Builder
	citations       []model.Citation
	internalSources []model.InternalSource
}

// Apply folds one event into the accumulator.
func (a *Accumulator) Apply(ev Event) {
	switch ev.Kind {
	case KindDelta:
		a.content.WriteString(ev.Text)
	case KindMeta:
		if ev.Citations != nil {
			a.citations = ev.Citations
		}
		if ev.InternalSources != nil {
			a.internalSources = ev.InternalSources
		}
	case KindDone:
		if ev.Citations != nil {
			a.citations = ev.Citations
		}
	}
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Result returns the triple accumulated so far.
func (a *Accumulator) Result() Result {
	return Result{
		Content:         a.content.String(),
		Citations:       a.citations,
		InternalSources: a.internalSources,
	}
}

// Collect drains the reader, invoking onDelta with the full accumulated
// content after every text chunk. Returns the final result, or a
// *StreamError carrying the partial result when the stream fails mid-way.
func Collect(ctx context.Context, r *Reader, onDelta func(partial string)) (Result, error) {
	var acc Accumulator
	for ev := range r.Events(ctx) {
		if ev.Kind == KindError {
			return acc.Result(), &StreamError{Partial: acc.Result(), Err: ev.Err}
		}
		acc.Apply(ev)
		if ev.Kind == KindDelta && onDelta != nil {
			onDelta(acc.Content())
		}
	}
	if err := ctx.Err(); err != nil {
		return acc.Result(), &StreamError{Partial: acc.Result(), Err: err}
	}
	return acc.Result(), nil
}
