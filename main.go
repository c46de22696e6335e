// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// fondchat is a terminal client for the Nordfund dashboard's AI chat:
// streamed answers, saved sessions with branches, shared sessions, and
// history search.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nordfund/fondchat/internal/cli"
	"github.com/nordfund/fondchat/internal/config"
)

// Build metadata, set via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		urlFlag     = flag.String("url", "", "backend base URL (overrides config)")
		tokenFlag   = flag.String("token", "", "bearer token (overrides config)")
		userFlag    = flag.String("user", "", "acting user id (overrides config)")
		configFlag  = flag.String("config", "", "config file path")
		verboseFlag = flag.Bool("verbose", false, "log API requests")
		versionFlag = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("fondchat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		if p, err := config.DefaultPath(); err == nil {
			cfgPath = p
		}
	}

	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fondchat: %v\n", err)
		os.Exit(1)
	}

	if *urlFlag != "" {
		cfg.Backend.URL = *urlFlag
	}
	if *tokenFlag != "" {
		cfg.Backend.Token = *tokenFlag
	}
	if *userFlag != "" {
		cfg.Backend.UserID = *userFlag
	}
	if *verboseFlag {
		cfg.Backend.Verbose = true
	}

	if cfg.Backend.URL == "" {
		fmt.Fprintln(os.Stderr, "fondchat: no backend URL; set backend.url in ~/.fondchat/config.toml or pass --url")
		os.Exit(1)
	}

	chat, err := cli.NewChatCLI(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fondchat: %v\n", err)
		os.Exit(1)
	}
	defer chat.Close()

	// Token rotations and tuning changes take effect without a restart.
	if cfgPath != "" {
		if w, err := config.Watch(cfgPath, chat.ApplyConfig); err == nil {
			defer w.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := chat.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fondchat: %v\n", err)
		os.Exit(1)
	}
}
