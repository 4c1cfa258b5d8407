package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// newChatCmd creates the "consilium chat" subcommand.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the chat TUI for this project",
		Long:  "Launches the interactive chat session for the current project's\nworkspace. Requires a terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return fmt.Errorf("chat requires an interactive terminal")
			}

			chatCmd := exec.CommandContext(cmd.Context(), "consilium-chat")
			chatCmd.Stdin = os.Stdin
			chatCmd.Stdout = os.Stdout
			chatCmd.Stderr = os.Stderr

			if err := chatCmd.Run(); err != nil {
				return fmt.Errorf("run consilium-chat: %w", err)
			}
			return nil
		},
	}
}
