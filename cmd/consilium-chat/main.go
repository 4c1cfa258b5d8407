// Package main implements the consilium interactive chat TUI.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/eavookindroid/consilium-agent-tui/pkg/eventlog"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/scheduler"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
	"github.com/eavookindroid/consilium-agent-tui/pkg/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "consilium-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("requires an interactive terminal")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	ws, err := workspace.Resolve(cwd)
	if err != nil {
		return err
	}

	lock, err := ws.Acquire()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	log, err := store.Open(ws.HistoryPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	reg, err := registry.Load(ws.SettingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	roles, err := registry.LoadRoles(ws.RolesDir)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	sessions := store.NewSessionStore(ws.AgentsDir)

	events, err := eventlog.OpenWriter(ws.EventLogPath)
	if err != nil {
		return err
	}
	defer func() { _ = events.Close() }()

	sched, err := scheduler.New(scheduler.Config{
		Log:      log,
		Sessions: sessions,
		Registry: reg,
		Roles:    roles,
		Events:   events,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	p := tea.NewProgram(newModel(sched, reg, log.Replay(0)), tea.WithAltScreen())

	// Pump scheduler updates into the program.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-sched.Updates():
				p.Send(schedMsg(u))
			}
		}
	}()

	// Live-reload the roster when settings.toml changes on disk.
	go func() {
		_ = reg.Watch(ctx, func() { p.Send(rosterReloadedMsg{}) })
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run chat: %w", err)
	}

	meta, err := store.LoadMeta(ws.MetaPath, ws.ProjectPath)
	if err == nil {
		meta.MessageCount = log.LastID()
		_ = store.SaveMeta(ws.MetaPath, meta)
	}
	return nil
}
