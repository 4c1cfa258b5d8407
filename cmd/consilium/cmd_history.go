package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
)

// newHistoryCmd creates the "consilium history" subcommand.
func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation transcript",
		Long:  "Replays the durable conversation log for the current project's\nworkspace. Secret exchanges are shown in full; this is the owner's\nown transcript.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := currentWorkspace()
			if err != nil {
				return err
			}
			log, err := store.Open(ws.HistoryPath)
			if err != nil {
				return err
			}
			defer log.Close()

			reg, err := registry.Load(ws.SettingsPath)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			name := func(id string) string {
				if p, ok := reg.Get(id); ok {
					return p.DisplayName()
				}
				return id
			}

			out := cmd.OutOrStdout()
			for _, m := range log.Replay(limit) {
				marker := ""
				if m.Secret() {
					marker = fmt.Sprintf(" [secret to %s]", name(m.Visibility.TargetID))
				}
				to := ""
				if len(m.AddressedTo) > 0 && !m.Secret() {
					names := make([]string, len(m.AddressedTo))
					for i, id := range m.AddressedTo {
						names[i] = "@" + name(id)
					}
					to = " to " + strings.Join(names, ", ")
				}
				fmt.Fprintf(out, "#%d %s %s%s%s\n%s\n\n",
					m.ID, m.Timestamp.Format("2006-01-02 15:04"), name(m.SenderID), to, marker, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultReplayWindow, "maximum number of messages to print (0 = all in window)")
	return cmd
}
