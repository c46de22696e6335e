// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nordfund/fondchat/internal/model"
)

// doneMarker terminates the stream without error.
const doneMarker = "[DONE]"

// ===== Events =====

// Kind classifies a stream event.
type Kind int

const (
	// KindDelta carries an incremental text chunk.
	KindDelta Kind = iota
	// KindMeta carries citations and internal sources ahead of completion.
	KindMeta
	// KindDone marks normal completion, optionally with a final
	// authoritative citations list.
	KindDone
	// KindError marks a structured error frame; the read stops after it.
	KindError
)

// Event is one typed occurrence on the stream.
type Event struct {
	Kind            Kind
	Text            string
	Citations       []model.Citation
	InternalSources []model.InternalSource
	Err             error
}

// ===== Wire frame =====

type metaPayload struct {
	Citations       []model.Citation       `json:"citations,omitempty"`
	InternalSources []model.InternalSource `json:"internalSources,omitempty"`
}

// frame is one decoded "data:" payload. The completion endpoint mixes
// field spellings, so both text and content are accepted.
type frame struct {
	Text      string           `json:"text"`
	Content   string           `json:"content"`
	Meta      *metaPayload     `json:"meta"`
	Done      bool             `json:"done"`
	Citations []model.Citation `json:"citations"`
	Error     string           `json:"error"`
}

// ===== Reader =====

// Reader parses server-sent events off a response body. It does not own
// any conversation state; callers fold its events however they like.
type Reader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewReader wraps a live event-stream body.
func NewReader(body io.ReadCloser) *Reader {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{body: body, scanner: sc}
}

// Close releases the underlying body.
func (r *Reader) Close() error {
	return r.body.Close()
}

// Next returns the next event. io.EOF signals normal end of stream, both
// for a [DONE] marker and for the body simply ending.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// event:/id: lines carry nothing the completion contract uses.
			continue
		}
		data = strings.TrimSpace(data)
		if data == doneMarker {
			return Event{}, io.EOF
		}

		ev, skip := decodeFrame(data)
		if skip {
			continue
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// decodeFrame turns one data payload into an event. skip is true for
// frames the stream tolerates silently (malformed JSON, empty frames).
func decodeFrame(data string) (ev Event, skip bool) {
	var f frame
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		// A malformed frame is dropped, unless it was an error payload
		// the server failed to encode cleanly. Those must surface.
		if strings.Contains(data, `"error"`) {
			return Event{Kind: KindError, Err: fmt.Errorf("malformed error frame: %s", data)}, false
		}
		return Event{}, true
	}

	if f.Error != "" {
		return Event{Kind: KindError, Err: errors.New(f.Error)}, false
	}
	if f.Done {
		return Event{Kind: KindDone, Citations: f.Citations}, false
	}
	if f.Meta != nil {
		return Event{
			Kind:            KindMeta,
			Citations:       f.Meta.Citations,
			InternalSources: f.Meta.InternalSources,
		}, false
	}

	text := f.Text
	if text == "" {
		text = f.Content
	}
	if text == "" {
		return Event{}, true
	}
	return Event{Kind: KindDelta, Text: text}, false
}

// Events drives the reader on a goroutine and delivers events on a
// channel. The channel closes when the stream ends, errors, or ctx is
// cancelled. Stream failures arrive as a final KindError event.
func (r *Reader) Events(ctx context.Context) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for {
			ev, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				ev = Event{Kind: KindError, Err: err}
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Kind == KindError {
				return
			}
		}
	}()
	return ch
}
