package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
)

// newMembersCmd creates the "consilium members" command group.
func newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage chat members",
	}
	cmd.AddCommand(
		newMembersListCmd(),
		newMembersAddCmd(),
		newMembersRemoveCmd(),
		newMembersEnableCmd(true),
		newMembersEnableCmd(false),
	)
	return cmd
}

func loadRegistry() (*registry.Registry, error) {
	ws, err := currentWorkspace()
	if err != nil {
		return nil, err
	}
	reg, err := registry.Load(ws.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return reg, nil
}

func newMembersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured members",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tADAPTER\tENABLED")
			for _, p := range reg.Participants() {
				enabled := "-"
				if p.Agent() {
					enabled = fmt.Sprintf("%t", p.Enabled)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.DisplayName(), p.Kind, p.Adapter, enabled)
			}
			return w.Flush()
		},
	}
}

func newMembersAddCmd() *cobra.Command {
	var nickname, adapterKind, command, roleID string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add an agent member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			id := args[0]
			if command == "" {
				command = adapterKind
			}
			p := protocol.Participant{
				ID:       id,
				Kind:     protocol.KindAgent,
				Nickname: nickname,
				Adapter:  protocol.AdapterKind(adapterKind),
				Command:  command,
				RoleID:   roleID,
				Enabled:  true,
			}
			if err := reg.Add(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", id, adapterKind)
			return nil
		},
	}

	cmd.Flags().StringVar(&nickname, "nickname", "", "display name shown in the chat")
	cmd.Flags().StringVar(&adapterKind, "adapter", "", "adapter kind: claude, codex, or gemini")
	cmd.Flags().StringVar(&command, "command", "", "CLI executable (defaults to the adapter name)")
	cmd.Flags().StringVar(&roleID, "role", "", "role id to assign")
	_ = cmd.MarkFlagRequired("adapter")

	return cmd
}

func newMembersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an agent member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if err := reg.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newMembersEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable a member for dispatch"
	if !enable {
		use, short = "disable <id>", "Exclude a member from dispatch"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if err := reg.SetEnabled(args[0], enable); err != nil {
				return err
			}
			state := "enabled"
			if !enable {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, args[0])
			return nil
		},
	}
}
