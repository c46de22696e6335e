// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive fondchat REPL.
//
// Interactive commands (during chat):
//
//	/help               Show available commands
//	/new                Start a new conversation
//	/sessions [query]   List or filter saved sessions
//	/load N             Open a session from the last listing
//	/delete N           Delete a session from the last listing
//	/history            Show the active thread
//	/edit N text        Edit user message N and regenerate
//	/regen              Regenerate the last answer
//	/branch [name]      Fork at the last answer
//	/branches           List branches
//	/main               Return to the main thread
//	/search query       Search the conversation; /next and /prev cycle
//	/pin /rename /tags  Session housekeeping
//	/share /stopshare   Share the session, stop sharing
//	/join CODE          Join a shared session
//	/invite USER        Invite a user to the active share
//	/attach FILE q      Upload a file and ask a question about it
//	/feedback N up|down Thumbs a message
//	/export FORMAT      Export (md, json, pdf, xlsx, docx)
//	/summarize          Summarize the conversation
//	/quit               Exit
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/nordfund/fondchat/internal/api"
	"github.com/nordfund/fondchat/internal/collab"
	"github.com/nordfund/fondchat/internal/config"
	"github.com/nordfund/fondchat/internal/engine"
	"github.com/nordfund/fondchat/internal/model"
	"github.com/nordfund/fondchat/internal/search"
	"github.com/nordfund/fondchat/internal/storage"
)

// ===== Styles =====

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	matchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)
)

// terminalNotifier prints engine notifications inline.
type terminalNotifier struct{}

func (terminalNotifier) Toast(msg string) {
	fmt.Println(warnStyle.Render("! " + msg))
}

func (terminalNotifier) Desktop(title, body string) {
	// Terminal bell stands in for a desktop banner.
	fmt.Printf("\a%s\n", warnStyle.Render(title+": "+body))
}

// ===== Chat CLI =====

// ChatCLI is the interactive chat loop.
type ChatCLI struct {
	line        *liner.State
	historyFile string
	cfg         *config.Config
	client      *api.Client
	engine      *engine.Engine
	cache       *storage.Cache
	invitations *collab.InvitationPoller

	// listing maps the numbers shown by /sessions to session ids.
	listing []model.Session

	// cursor cycles /search matches.
	cursor *search.Cursor

	// streamed tracks how much of the pending answer is on screen.
	streamed int
}

// NewChatCLI wires up the REPL from configuration.
func NewChatCLI(cfg *config.Config) (*ChatCLI, error) {
	client := api.NewClient(cfg.Backend.URL).
		WithAuthToken(cfg.Backend.Token).
		WithUserID(cfg.Backend.UserID).
		WithVerbose(cfg.Backend.Verbose)

	var cache *storage.Cache
	if cfg.Cache.Enabled {
		if path, err := cfg.CachePath(); err == nil {
			cache, _ = storage.Open(path)
		}
	}

	opts := []engine.Option{
		engine.WithNotifier(terminalNotifier{}),
		engine.WithMode(cfg.Chat.Mode),
		engine.WithPollInterval(time.Duration(cfg.Chat.PollSeconds) * time.Second),
	}
	if cache != nil {
		opts = append(opts, engine.WithCache(cache))
	}
	eng := engine.New(client, opts...)

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}

	c := &ChatCLI{
		line:        line,
		historyFile: historyFile,
		cfg:         cfg,
		client:      client,
		engine:      eng,
		cache:       cache,
		invitations: collab.NewInvitationPoller(client).
			WithInterval(time.Duration(cfg.Chat.InvitationPollSeconds) * time.Second),
	}
	c.loadHistory()
	eng.OnChange(c.renderDelta)
	return c, nil
}

// ApplyConfig takes over reloadable settings from a changed config
// file. Backend URL and cache location require a restart.
func (c *ChatCLI) ApplyConfig(next *config.Config) {
	c.client.
		WithAuthToken(next.Backend.Token).
		WithUserID(next.Backend.UserID).
		WithVerbose(next.Backend.Verbose)
	c.cfg.Backend = next.Backend
	c.cfg.Chat = next.Chat
}

// Close saves input history and releases resources.
func (c *ChatCLI) Close() {
	c.saveHistory()
	c.line.Close()
	c.invitations.Stop()
	c.engine.Dispose()
	if c.cache != nil {
		c.cache.Close()
	}
}

func (c *ChatCLI) loadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

func (c *ChatCLI) saveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Run enters the REPL until /quit or EOF.
func (c *ChatCLI) Run(ctx context.Context) error {
	fmt.Println(promptStyle.Render("fondchat"), infoStyle.Render("— skriv en fråga, /help för kommandon"))

	c.invitations.Start(func(inv model.Invitation) {
		from := inv.FromName
		if from == "" {
			from = inv.FromUserID
		}
		fmt.Printf("\n%s\n", warnStyle.Render(
			fmt.Sprintf("Inbjudan från %s till %q — /join %s för att gå med", from, inv.SessionTitle, inv.ShareCode)))
	})

	for {
		input, err := c.line.Prompt(c.prompt())
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			// Ctrl+D or closed terminal.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		c.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := c.handleCommand(ctx, input); quit {
				return nil
			}
			continue
		}

		c.send(ctx, input)
	}
}

func (c *ChatCLI) prompt() string {
	sess := c.engine.Session()
	tag := ""
	if sess.Shared() {
		tag = " [delad]"
	}
	if id := c.engine.ActiveBranchID(); id != "" {
		tag += " [gren]"
	}
	return promptStyle.Render("du"+tag+"> ")
}

// send posts a question and lets renderDelta stream the answer.
func (c *ChatCLI) send(ctx context.Context, content string) {
	c.streamed = 0
	fmt.Print(assistantStyle.Render("assistent> "))
	err := c.engine.SendMessage(ctx, content, nil, nil)
	fmt.Println()
	if err == engine.ErrBusy {
		fmt.Println(warnStyle.Render("Ett svar håller redan på att genereras"))
		return
	}
	if err != nil {
		return
	}
	c.printCitations()
}

// renderDelta prints newly streamed content. Invoked on every engine
// state change; only the pending assistant tail is written.
func (c *ChatCLI) renderDelta() {
	if !c.engine.Loading() {
		return
	}
	msgs := c.engine.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant {
		return
	}
	if len(last.Content) > c.streamed {
		fmt.Print(last.Content[c.streamed:])
		c.streamed = len(last.Content)
	}
}

func (c *ChatCLI) printCitations() {
	msgs := c.engine.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant {
		return
	}
	for _, cit := range last.Citations {
		if cit.URL != "" {
			fmt.Println(infoStyle.Render("  källa: " + cit.Title + " <" + cit.URL + ">"))
		} else {
			fmt.Println(infoStyle.Render("  källa: " + cit.Title))
		}
	}
	for _, src := range last.InternalSources {
		fmt.Println(infoStyle.Render("  intern källa: " + src.Title))
	}
}

// printHistory shows the active thread with 1-based numbering, the same
// numbers /edit and /feedback accept.
func (c *ChatCLI) printHistory() {
	msgs := c.engine.Messages()
	if len(msgs) == 0 {
		fmt.Println(infoStyle.Render("(tom konversation)"))
		return
	}
	for i, m := range msgs {
		role := userStyle.Render("du")
		if m.Role == model.RoleAssistant {
			role = assistantStyle.Render("assistent")
		}
		name := ""
		if m.SenderName != "" {
			name = " (" + m.SenderName + ")"
		}
		fmt.Printf("%2d. %s%s: %s\n", i+1, role, name, m.Preview(100))
	}
}
