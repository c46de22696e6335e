// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/engine"
	"github.com/nordfund/fondchat/internal/export"
	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/search"
	"github.com/nordfund/fondchat/internal/util"
)

// handleCommand dispatches one /command. Returns true to exit the REPL.
func (c *ChatCLI) handleCommand(ctx context.Context, input string) bool {
	parts := strings.SplitN(input, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/q":
		return true
	case "/help", "/h":
		c.printHelp()
	case "/new":
		c.engine.StartNewSession()
		fmt.Println(infoStyle.Render("Ny konversation"))
	case "/history":
		c.printHistory()
	case "/sessions", "/s":
		c.listSessions(ctx, arg)
	case "/load":
		c.loadListed(ctx, arg)
	case "/delete":
		c.deleteListed(ctx, arg)
	case "/edit":
		c.edit(ctx, arg)
	case "/regen":
		c.regenerate(ctx)
	case "/branch":
		c.branch(ctx, arg)
	case "/branches":
		c.printBranches()
	case "/main":
		c.engine.SwitchToMain()
		fmt.Println(infoStyle.Render("Tillbaka på huvudtråden"))
	case "/search":
		c.search(arg)
	case "/next":
		c.cycle(true)
	case "/prev":
		c.cycle(false)
	case "/pin":
		if err := c.engine.TogglePin(ctx); err == nil {
			fmt.Println(infoStyle.Render("Fäst-läge växlat"))
		}
	case "/rename":
		if arg == "" {
			fmt.Println(warnStyle.Render("Användning: /rename ny titel"))
			return false
		}
		if err := c.engine.Rename(ctx, arg); err == nil {
			fmt.Println(infoStyle.Render("Sessionen har bytt namn"))
		}
	case "/tags":
		c.updateTags(ctx, arg)
	case "/share":
		if code, err := c.engine.StartSharing(ctx); err == nil {
			fmt.Println(infoStyle.Render("Delningskod: " + code))
		}
	case "/stopshare":
		if err := c.engine.StopSharing(ctx); err == nil {
			fmt.Println(infoStyle.Render("Delningen avslutad"))
		}
	case "/join":
		if arg == "" {
			fmt.Println(warnStyle.Render("Användning: /join KOD"))
			return false
		}
		if err := c.engine.JoinShared(ctx, arg); err == nil {
			fmt.Println(infoStyle.Render("Ansluten till delad session"))
			c.printHistory()
		}
	case "/invite":
		if arg == "" {
			fmt.Println(warnStyle.Render("Användning: /invite ANVÄNDARE"))
			return false
		}
		if err := c.engine.Invite(ctx, arg); err == nil {
			fmt.Println(infoStyle.Render("Inbjudan skickad"))
		}
	case "/participants":
		for _, p := range c.engine.Participants() {
			fmt.Println(infoStyle.Render("  " + p.UserID + " " + p.Name))
		}
	case "/attach":
		c.attach(ctx, arg)
	case "/feedback":
		c.feedback(ctx, arg)
	case "/export":
		c.export(ctx, arg)
	case "/summarize":
		c.summarize(ctx)
	default:
		fmt.Println(warnStyle.Render("Okänt kommando, /help visar alla"))
	}
	return false
}

func (c *ChatCLI) printHelp() {
	fmt.Print(infoStyle.Render(`Kommandon:
  /new                ny konversation
  /sessions [sök]     lista eller filtrera sparade sessioner
  /load N             öppna session N från listan
  /delete N           ta bort session N från listan
  /history            visa aktiv tråd
  /edit N text        redigera meddelande N och generera om
  /regen              generera om senaste svaret
  /branch [namn]      förgrena vid senaste svaret
  /branches, /main    lista grenar, tillbaka till huvudtråden
  /search ord         sök i konversationen (/next, /prev bläddrar)
  /pin /rename /tags  fäst, byt namn, taggar (a,b,c)
  /share /stopshare   dela sessionen, sluta dela
  /join KOD           gå med i delad session
  /invite ANVÄNDARE   bjud in till delningen
  /attach FIL fråga   bifoga en fil och ställ en fråga
  /feedback N up|down tumme upp/ner på meddelande N
  /export FORMAT      md, json, pdf, xlsx eller docx
  /summarize          sammanfatta konversationen
  /quit               avsluta
`))
}

// listSessions fetches the remote list (cache as fallback), filters it,
// and remembers the numbering for /load and /delete.
func (c *ChatCLI) listSessions(ctx context.Context, query string) {
	var sessions []model.Session
	if page, err := c.client.ListSessions(ctx, 50, ""); err == nil {
		sessions = page.Sessions
		if c.cache != nil {
			c.cache.Replace(sessions)
		}
	} else if c.cache != nil {
		// Offline: fall back to the local mirror.
		if cached, cerr := c.cache.List(); cerr == nil {
			sessions = cached
			fmt.Println(infoStyle.Render("(visar lokalt cachad lista)"))
		}
	}

	sessions = search.Sessions(sessions, query)
	c.listing = sessions
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("Inga sessioner"))
		return
	}
	for i, s := range sessions {
		pin := "  "
		if s.Pinned {
			pin = "* "
		}
		title := s.Title
		if title == "" {
			title = "(utan titel)"
		}
		tags := ""
		if len(s.Tags) > 0 {
			tags = "  [" + strings.Join(s.Tags, ", ") + "]"
		}
		fmt.Printf("%2d. %s%s%s\n", i+1, pin, util.Truncate(title, 60), infoStyle.Render(tags))
	}
}

func (c *ChatCLI) listedSession(arg string) (*model.Session, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(c.listing) {
		fmt.Println(warnStyle.Render("Ange ett nummer från /sessions"))
		return nil, false
	}
	return &c.listing[n-1], true
}

func (c *ChatCLI) loadListed(ctx context.Context, arg string) {
	sess, ok := c.listedSession(arg)
	if !ok {
		return
	}
	if err := c.engine.LoadSession(ctx, sess.SessionID); err == nil {
		fmt.Println(infoStyle.Render("Öppnade: " + sess.Title))
		c.printHistory()
	}
}

func (c *ChatCLI) deleteListed(ctx context.Context, arg string) {
	sess, ok := c.listedSession(arg)
	if !ok {
		return
	}
	if err := c.engine.DeleteSession(ctx, sess.SessionID); err == nil {
		fmt.Println(infoStyle.Render("Borttagen: " + sess.Title))
	}
}

func (c *ChatCLI) edit(ctx context.Context, arg string) {
	parts := strings.SplitN(arg, " ", 2)
	if len(parts) < 2 {
		fmt.Println(warnStyle.Render("Användning: /edit N ny text"))
		return
	}
	msg, ok := c.numberedMessage(parts[0])
	if !ok {
		return
	}

	c.streamed = 0
	fmt.Print(assistantStyle.Render("assistent> "))
	err := c.engine.EditMessage(ctx, msg.ID, parts[1])
	fmt.Println()
	c.reportTurnError(err)
}

func (c *ChatCLI) regenerate(ctx context.Context) {
	msgs := c.engine.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != model.RoleAssistant {
		fmt.Println(warnStyle.Render("Inget svar att generera om"))
		return
	}

	c.streamed = 0
	fmt.Print(assistantStyle.Render("assistent> "))
	err := c.engine.Regenerate(ctx, msgs[len(msgs)-1].ID)
	fmt.Println()
	c.reportTurnError(err)
}

func (c *ChatCLI) reportTurnError(err error) {
	switch err {
	case nil:
		c.printCitations()
	case engine.ErrBusy:
		fmt.Println(warnStyle.Render("Ett svar håller redan på att genereras"))
	case engine.ErrNotUserMessage:
		fmt.Println(warnStyle.Render("Bara dina egna meddelanden kan redigeras"))
	case engine.ErrNotAssistantMessage, engine.ErrNoPriorUserMessage:
		fmt.Println(warnStyle.Render("Det går inte att generera om här"))
	}
}

func (c *ChatCLI) branch(ctx context.Context, name string) {
	msgs := c.engine.MainMessages()
	var lastAssistant string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			lastAssistant = msgs[i].ID
			break
		}
	}
	if lastAssistant == "" {
		fmt.Println(warnStyle.Render("Inget svar att förgrena vid"))
		return
	}
	if _, err := c.engine.StartBranch(ctx, lastAssistant, name); err == nil {
		fmt.Println(infoStyle.Render("Gren skapad och aktiv"))
	}
}

func (c *ChatCLI) printBranches() {
	branches := c.engine.Branches()
	if len(branches) == 0 {
		fmt.Println(infoStyle.Render("Inga grenar"))
		return
	}
	active := c.engine.ActiveBranchID()
	for _, b := range branches {
		marker := "  "
		if b.BranchID == active {
			marker = "> "
		}
		name := b.Name
		if name == "" {
			name = b.BranchID
		}
		fmt.Printf("%s%s (%d meddelanden)\n", marker, name, len(b.Messages))
	}
}

func (c *ChatCLI) search(query string) {
	if query == "" {
		fmt.Println(warnStyle.Render("Användning: /search ord"))
		return
	}
	matches := search.Conversation(c.engine.Messages(), query)
	c.cursor = search.NewCursor(matches)
	if len(matches) == 0 {
		fmt.Println(infoStyle.Render("Inga träffar"))
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("%d träffar", len(matches))))
	c.showMatch()
}

func (c *ChatCLI) cycle(forward bool) {
	if c.cursor == nil || c.cursor.Len() == 0 {
		fmt.Println(warnStyle.Render("Ingen aktiv sökning"))
		return
	}
	if forward {
		c.cursor.Next()
	} else {
		c.cursor.Prev()
	}
	c.showMatch()
}

func (c *ChatCLI) showMatch() {
	idx := c.cursor.Current()
	msgs := c.engine.Messages()
	if idx < 0 || idx >= len(msgs) {
		return
	}
	fmt.Printf("%s %s\n",
		matchStyle.Render(fmt.Sprintf("[%d/%d] #%d", c.cursor.Pos()+1, c.cursor.Len(), idx+1)),
		msgs[idx].Preview(100))
}

func (c *ChatCLI) updateTags(ctx context.Context, arg string) {
	var tags []string
	for _, t := range strings.Split(arg, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	if err := c.engine.UpdateTags(ctx, tags); err == nil {
		fmt.Println(infoStyle.Render("Taggar uppdaterade"))
	}
}

func (c *ChatCLI) numberedMessage(arg string) (*model.Message, bool) {
	msgs := c.engine.Messages()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(msgs) {
		fmt.Println(warnStyle.Render("Ange ett meddelandenummer från /history"))
		return nil, false
	}
	return &msgs[n-1], true
}

// attach uploads a file for text extraction and sends it with a
// question: /attach rapport.pdf Sammanfatta rapporten
func (c *ChatCLI) attach(ctx context.Context, arg string) {
	parts := strings.SplitN(arg, " ", 2)
	if len(parts) < 2 {
		fmt.Println(warnStyle.Render("Användning: /attach FIL fråga"))
		return
	}
	path, question := parts[0], parts[1]

	f, err := os.Open(path)
	if err != nil {
		fmt.Println(warnStyle.Render("Kunde inte öppna filen: " + err.Error()))
		return
	}
	info, _ := f.Stat()
	parsed, err := c.client.ParseFile(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		fmt.Println(warnStyle.Render("Kunde inte tolka filen: " + err.Error()))
		return
	}

	att := model.Attachment{
		Name:     filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Content:  parsed.Content,
	}
	if info != nil {
		att.Size = info.Size()
	}

	c.streamed = 0
	fmt.Print(assistantStyle.Render("assistent> "))
	sendErr := c.engine.SendMessage(ctx, question, []model.Attachment{att}, nil)
	fmt.Println()
	c.reportTurnError(sendErr)
}

func (c *ChatCLI) feedback(ctx context.Context, arg string) {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		fmt.Println(warnStyle.Render("Användning: /feedback N up|down"))
		return
	}
	msg, ok := c.numberedMessage(parts[0])
	if !ok {
		return
	}
	verdict := model.FeedbackPositive
	if parts[1] == "down" {
		verdict = model.FeedbackNegative
	}
	if err := c.engine.SetFeedback(ctx, msg.ID, verdict); err == nil {
		fmt.Println(infoStyle.Render("Tack för återkopplingen"))
	}
}

func (c *ChatCLI) export(ctx context.Context, format string) {
	sess := c.engine.Session()
	switch format {
	case "md", "markdown":
		if path, err := export.ToFile(sess, export.NewMarkdownExporter(nil), nil); err == nil {
			fmt.Println(infoStyle.Render("Sparad: " + path))
		} else {
			fmt.Println(warnStyle.Render("Export misslyckades: " + err.Error()))
		}
	case "json":
		if path, err := export.ToFile(sess, export.NewJSONExporter(), nil); err == nil {
			fmt.Println(infoStyle.Render("Sparad: " + path))
		} else {
			fmt.Println(warnStyle.Render("Export misslyckades: " + err.Error()))
		}
	case "pdf", "docx":
		c.exportRemote(ctx, sess, format)
	case "xlsx", "excel":
		c.exportWorkbook(ctx, sess)
	default:
		fmt.Println(warnStyle.Render("Format: md, json, pdf, xlsx eller docx"))
	}
}

func (c *ChatCLI) exportRemote(ctx context.Context, sess *model.Session, format string) {
	req, err := export.BuildDocumentRequest(sess)
	if err != nil {
		fmt.Println(warnStyle.Render("Export misslyckades: " + err.Error()))
		return
	}
	target := api.ExportPDF
	ext := ".pdf"
	if format == "docx" {
		target = api.ExportDocx
		ext = ".docx"
	}
	blob, err := c.client.GenerateDocument(ctx, target, req)
	if err != nil {
		fmt.Println(warnStyle.Render("Export misslyckades: " + err.Error()))
		return
	}
	c.writeBlob(req.Title, ext, blob)
}

func (c *ChatCLI) exportWorkbook(ctx context.Context, sess *model.Session) {
	req, err := export.BuildWorkbookRequest(sess)
	if err != nil {
		fmt.Println(warnStyle.Render("Export misslyckades: " + err.Error()))
		return
	}
	blob, err := c.client.GenerateDocument(ctx, api.ExportExcel, req)
	if err != nil {
		fmt.Println(warnStyle.Render("Export misslyckades: " + err.Error()))
		return
	}
	c.writeBlob(req.Title, ".xlsx", blob)
}

func (c *ChatCLI) writeBlob(title, ext string, blob []byte) {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '-'
		}
		return r
	}, util.Truncate(title, 40)) + ext
	if err := os.WriteFile(name, blob, 0644); err != nil {
		fmt.Println(warnStyle.Render("Kunde inte skriva filen: " + err.Error()))
		return
	}
	fmt.Println(infoStyle.Render("Sparad: " + name))
}

func (c *ChatCLI) summarize(ctx context.Context) {
	turns := model.HistoryWindow(c.engine.Messages(), 20)
	if len(turns) == 0 {
		fmt.Println(infoStyle.Render("Inget att sammanfatta"))
		return
	}
	summary, err := c.client.Summarize(ctx, turns)
	if err != nil {
		fmt.Println(warnStyle.Render("Kunde inte sammanfatta: " + err.Error()))
		return
	}
	fmt.Println(assistantStyle.Render(summary))
}
