package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newUnlockCmd creates the "consilium unlock" subcommand.
func newUnlockCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove the workspace lock",
		Long:  "Removes the advisory lock left by a crashed session. Refuses when\nthe holding process is still alive unless --force is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := currentWorkspace()
			if err != nil {
				return err
			}

			pid, alive, err := ws.Holder()
			if err == nil && alive && !force {
				return fmt.Errorf("lock is held by running pid %d; use --force to remove anyway", pid)
			}

			if err := ws.ForceUnlock(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "lock removed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove the lock even if the holder is alive")
	return cmd
}
