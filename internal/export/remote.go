// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/model"
)

// BuildDocumentRequest shapes a session into the backend's pdf/docx
// generator contract: one section per turn.
func BuildDocumentRequest(sess *model.Session) (api.ExportRequest, error) {
	if sess == nil || len(sess.Messages) == 0 {
		return api.ExportRequest{}, errors.New("nothing to export")
	}

	title := sess.Title
	if title == "" {
		title = "Konversation"
	}

	req := api.ExportRequest{
		Title:  title,
		Footer: "Exporterad från fondchat " + model.NowTimestamp(),
	}
	for _, m := range sess.Messages {
		heading := "Fråga"
		if m.Role == model.RoleAssistant {
			heading = "Svar"
		}
		req.Sections = append(req.Sections, api.Section{
			Heading: heading,
			Body:    m.Content,
		})
	}
	return req, nil
}

// BuildWorkbookRequest shapes a session into the backend's excel
// generator contract: one sheet with a row per message.
func BuildWorkbookRequest(sess *model.Session) (api.ExportRequest, error) {
	if sess == nil || len(sess.Messages) == 0 {
		return api.ExportRequest{}, errors.New("nothing to export")
	}

	title := sess.Title
	if title == "" {
		title = "Konversation"
	}

	rows := [][]string{{"Tid", "Roll", "Innehåll"}}
	for _, m := range sess.Messages {
		rows = append(rows, []string{m.Timestamp, string(m.Role), m.Content})
	}
	return api.ExportRequest{
		Title:  title,
		Sheets: []api.Sheet{{Name: "Konversation", Rows: rows}},
	}, nil
}
