// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func reader(s string) *Reader {
	return NewReader(io.NopCloser(strings.NewReader(s)))
}

func TestCollectConcatenatesDeltas(t *testing.T) {
	body := "data: {\"text\":\"Hej \"}\n\n" +
		"data: {\"text\":\"där\"}\n\n" +
		"data: [DONE]\n"

	var calls []string
	result, err := Collect(context.Background(), reader(body), func(p string) {
		calls = append(calls, p)
	})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Content != "Hej där" {
		t.Errorf("content = %q, want %q", result.Content, "Hej där")
	}
	if len(calls) != 2 || calls[0] != "Hej " || calls[1] != "Hej där" {
		t.Errorf("callback sequence = %v", calls)
	}
}

func TestCollectAcceptsContentField(t *testing.T) {
	body := "data: {\"content\":\"svar\"}\n\ndata: [DONE]\n"
	result, err := Collect(context.Background(), reader(body), nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Content != "svar" {
		t.Errorf("content = %q", result.Content)
	}
}

func TestCollectMetaAndDoneCitations(t *testing.T) {
	body := "data: {\"meta\":{\"citations\":[{\"title\":\"tidig\"}],\"internalSources\":[{\"title\":\"KB-1\"}]}}\n\n" +
		"data: {\"text\":\"ok\"}\n\n" +
		"data: {\"done\":true,\"citations\":[{\"title\":\"slutgiltig\"}]}\n"

	result, err := Collect(context.Background(), reader(body), nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0].Title != "slutgiltig" {
		t.Errorf("done citations must override meta, got %+v", result.Citations)
	}
	if len(result.InternalSources) != 1 || result.InternalSources[0].Title != "KB-1" {
		t.Errorf("internal sources = %+v", result.InternalSources)
	}
}

func TestCollectSkipsMalformedFrames(t *testing.T) {
	body := "data: {\"text\":\"a\"}\n\n" +
		"data: this is not json\n\n" +
		"data: {\"text\":\"b\"}\n\ndata: [DONE]\n"

	result, err := Collect(context.Background(), reader(body), nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Content != "ab" {
		t.Errorf("content = %q, want ab", result.Content)
	}
}

func TestCollectErrorFramePreservesPartial(t *testing.T) {
	body := "data: {\"text\":\"Hej \"}\n\n" +
		"data: {\"text\":\"där\"}\n\n" +
		"data: {\"error\":\"model unavailable\"}\n"

	result, err := Collect(context.Background(), reader(body), nil)
	if err == nil {
		t.Fatal("expected stream error")
	}
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T", err)
	}
	if se.Partial.Content != "Hej där" {
		t.Errorf("partial = %q, want %q", se.Partial.Content, "Hej där")
	}
	if result.Content != "Hej där" {
		t.Errorf("result = %q, want partial text", result.Content)
	}
}

func TestCollectMalformedErrorFramePropagates(t *testing.T) {
	body := "data: {\"text\":\"a\"}\n\n" +
		"data: {\"error\": oops not json\n"

	_, err := Collect(context.Background(), reader(body), nil)
	if err == nil {
		t.Fatal("malformed error frame must abort the read")
	}
}

func TestCollectEndsWithoutDoneMarker(t *testing.T) {
	body := "data: {\"text\":\"klar\"}\n"
	result, err := Collect(context.Background(), reader(body), nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Content != "klar" {
		t.Errorf("content = %q", result.Content)
	}
}

func TestReaderIgnoresCommentsAndEventLines(t *testing.T) {
	body := ": keepalive\n" +
		"event: message\n" +
		"data: {\"text\":\"x\"}\n\ndata: [DONE]\n"

	r := reader(body)
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Kind != KindDelta || ev.Text != "x" {
		t.Errorf("event = %+v", ev)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF after [DONE], got %v", err)
	}
}

func TestCollectContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := "data: {\"text\":\"x\"}\n\ndata: [DONE]\n"
	_, err := Collect(ctx, reader(body), nil)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
