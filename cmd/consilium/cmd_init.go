package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
)

// defaultAgents is the member roster a fresh workspace starts with.
func defaultAgents() []protocol.Participant {
	return []protocol.Participant{
		{ID: "claude", Kind: protocol.KindAgent, Nickname: "Claude", Color: "#cc785c", Adapter: protocol.AdapterClaude, Command: "claude", Enabled: true},
		{ID: "codex", Kind: protocol.KindAgent, Nickname: "Codex", Color: "#10a37f", Adapter: protocol.AdapterCodex, Command: "codex", Enabled: true},
		{ID: "gemini", Kind: protocol.KindAgent, Nickname: "Gemini", Color: "#4796e3", Adapter: protocol.AdapterGemini, Command: "gemini", Enabled: true},
	}
}

// newInitCmd creates the "consilium init" subcommand.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace for the current project",
		Long:  "Creates the workspace state directory for the current project,\nwrites default member settings, and installs the starter roles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := currentWorkspace()
			if err != nil {
				return err
			}

			reg, err := registry.Load(ws.SettingsPath)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			for _, agent := range defaultAgents() {
				if _, ok := reg.Get(agent.ID); ok {
					continue
				}
				if err := reg.Add(agent); err != nil {
					return fmt.Errorf("add default member %s: %w", agent.ID, err)
				}
			}
			if err := reg.Save(); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}

			roles, err := registry.LoadRoles(ws.RolesDir)
			if err != nil {
				return fmt.Errorf("load roles: %w", err)
			}
			if err := roles.Bootstrap(); err != nil {
				return fmt.Errorf("bootstrap roles: %w", err)
			}

			meta, err := store.LoadMeta(ws.MetaPath, ws.ProjectPath)
			if err != nil {
				return fmt.Errorf("load workspace metadata: %w", err)
			}
			if err := store.SaveMeta(ws.MetaPath, meta); err != nil {
				return fmt.Errorf("save workspace metadata: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workspace %s initialized at %s\n", ws.Digest, ws.Dir)
			fmt.Fprintf(out, "members: %d, roles: %d\n", len(reg.Participants()), len(roles.List()))
			return nil
		},
	}
}
