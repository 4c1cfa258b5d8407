package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
)

// newStatusCmd creates the "consilium status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace state",
		Long:  "Displays workspace location, lock holder, member roster, message\ncount, and stored agent sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := currentWorkspace()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "workspace: %s\n", ws.Dir)
			fmt.Fprintf(out, "project:   %s\n", ws.ProjectPath)

			pid, alive, err := ws.Holder()
			switch {
			case err != nil:
				fmt.Fprintf(out, "lock:      unreadable (%v)\n", err)
			case pid == 0:
				fmt.Fprintln(out, "lock:      free")
			case alive:
				fmt.Fprintf(out, "lock:      held by pid %d\n", pid)
			default:
				fmt.Fprintf(out, "lock:      stale (pid %d is gone)\n", pid)
			}

			reg, err := registry.Load(ws.SettingsPath)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			fmt.Fprintf(out, "members:   %d (%d agents enabled)\n", len(reg.Participants()), len(reg.EnabledAgents()))

			meta, err := store.LoadMeta(ws.MetaPath, ws.ProjectPath)
			if err == nil {
				fmt.Fprintf(out, "messages:  %d\n", meta.MessageCount)
			}

			sessions, err := store.NewSessionStore(ws.AgentsDir).List()
			if err == nil {
				for _, s := range sessions {
					state := "fresh"
					if s.SessionToken != "" {
						state = "resumable"
					}
					fmt.Fprintf(out, "session:   %s (%s, %s)\n", s.AgentID, s.AdapterType, state)
				}
			}
			return nil
		},
	}
}
