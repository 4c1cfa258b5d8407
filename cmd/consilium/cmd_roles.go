package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
)

// newRolesCmd creates the "consilium roles" command group.
func newRolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage reusable role prompts",
	}
	cmd.AddCommand(
		newRolesListCmd(),
		newRolesCreateCmd(),
		newRolesShowCmd(),
		newRolesRenameCmd(),
		newRolesDeleteCmd(),
	)
	return cmd
}

func loadRoleManager() (*registry.RoleManager, error) {
	ws, err := currentWorkspace()
	if err != nil {
		return nil, err
	}
	roles, err := registry.LoadRoles(ws.RolesDir)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

func newRolesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := loadRoleManager()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, r := range roles.List() {
				fmt.Fprintf(w, "%s\t%s\n", r.ID, r.Name)
			}
			return w.Flush()
		},
	}
}

func newRolesCreateCmd() *cobra.Command {
	var promptFile string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := loadRoleManager()
			if err != nil {
				return err
			}
			role, err := roles.Create(args[0])
			if err != nil {
				return err
			}
			if promptFile != "" {
				prompt, err := os.ReadFile(promptFile) //nolint:gosec // user-supplied prompt file
				if err != nil {
					return fmt.Errorf("read prompt file: %w", err)
				}
				if err := roles.SavePrompt(role.ID, string(prompt)); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created role %s (%s)\n", role.Name, role.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "file containing the role's system prompt")
	return cmd
}

func newRolesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a role's prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := loadRoleManager()
			if err != nil {
				return err
			}
			role, ok := roles.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown role %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", role.Name, role.Prompt)
			return nil
		},
	}
}

func newRolesRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := loadRoleManager()
			if err != nil {
				return err
			}
			if err := roles.Rename(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newRolesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a role not referenced by any member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := loadRoleManager()
			if err != nil {
				return err
			}
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if err := roles.Delete(args[0], reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
