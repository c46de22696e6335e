// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ExportFormat selects a document generation endpoint.
type ExportFormat string

const (
	ExportPDF   ExportFormat = "pdf"
	ExportExcel ExportFormat = "excel"
	ExportDocx  ExportFormat = "docx"
)

// Section is one titled block of an exported document.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Sheet is one tab of an exported workbook.
type Sheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// ExportRequest is the body for the generate-* endpoints. Sections feeds
// pdf/docx; Sheets feeds excel.
type ExportRequest struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections,omitempty"`
	Sheets   []Sheet   `json:"sheets,omitempty"`
	Footer   string    `json:"footer,omitempty"`
}

var exportPaths = map[ExportFormat]string{
	ExportPDF:   "/api/ai/generate-pdf",
	ExportExcel: "/api/ai/generate-excel",
	ExportDocx:  "/api/ai/generate-docx",
}

// GenerateDocument renders the request server-side and returns the binary
// document.
func (c *Client) GenerateDocument(ctx context.Context, format ExportFormat, req ExportRequest) ([]byte, error) {
	path, ok := exportPaths[format]
	if !ok {
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	endpoint, err := c.endpoint(path, nil)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	blob, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return blob, nil
}
