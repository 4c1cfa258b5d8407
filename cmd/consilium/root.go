package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/internal/appversion"
	"github.com/eavookindroid/consilium-agent-tui/pkg/workspace"
)

// newRootCmd creates the root consilium command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "consilium",
		Short:         "Multi-agent chat for your project",
		Long:          "consilium runs a group chat between you and the coding agents\nconfigured for the current project directory.",
		Version:       fmt.Sprintf("consilium %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newChatCmd(),
		newInitCmd(),
		newMembersCmd(),
		newRolesCmd(),
		newHistoryCmd(),
		newLogsCmd(),
		newStatusCmd(),
		newUnlockCmd(),
	)

	return cmd
}

// currentWorkspace resolves the workspace for the current directory.
func currentWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return workspace.Resolve(cwd)
}
