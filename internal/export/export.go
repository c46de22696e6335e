// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export turns conversations into documents. Markdown and JSON
// render locally; PDF, Excel, and Word are built as structured requests
// for the backend's generator endpoints.
package export

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/util"
)

// Exporter renders a session locally.
type Exporter interface {
	Export(sess *model.Session) ([]byte, error)
	FileExtension() string
	MimeType() string
}

// Options configures local export output.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds a header with title and timestamps.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// ToFile exports a session to a file in opts.OutputDir and returns the
// written path.
func ToFile(sess *model.Session, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if sess == nil {
		return "", errors.New("session is nil")
	}

	data, err := exporter.Export(sess)
	if err != nil {
		return "", err
	}

	name := filenameFor(sess) + exporter.FileExtension()
	path := filepath.Join(opts.OutputDir, name)
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// filenameFor derives a filesystem-safe name from the session title.
func filenameFor(sess *model.Session) string {
	title := sess.Title
	if title == "" {
		title = "konversation"
	}
	title = util.Truncate(title, 40)

	safe := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			safe = append(safe, r)
		case r == ' ', r == '-', r == '_':
			safe = append(safe, '-')
		case r == 'å', r == 'ä':
			safe = append(safe, 'a')
		case r == 'ö':
			safe = append(safe, 'o')
		case r == 'Å', r == 'Ä':
			safe = append(safe, 'A')
		case r == 'Ö':
			safe = append(safe, 'O')
		}
	}
	if len(safe) == 0 {
		return "konversation"
	}
	return string(safe)
}
