package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eavookindroid/consilium-agent-tui/pkg/eventlog"
)

// logsConfig holds filter flags for the logs command.
type logsConfig struct {
	roundID     string
	participant string
	eventType   string
	tail        int
}

// newLogsCmd creates the "consilium logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query engine lifecycle events",
		Long:  "Displays dispatch rounds, faults, session resets, and interrupts\nfrom the workspace event log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := currentWorkspace()
			if err != nil {
				return err
			}

			r, err := eventlog.NewReader(ws.EventLogPath)
			if err != nil {
				return err
			}
			defer r.Close()

			events, err := r.Query(cmd.Context(), eventlog.QueryOpts{
				RoundID:       cfg.roundID,
				ParticipantID: cfg.participant,
				EventType:     cfg.eventType,
				Limit:         cfg.tail,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tROUND\tPARTICIPANT\tDETAIL")
			for _, e := range events {
				round := e.RoundID
				if len(round) > 8 {
					round = round[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format("15:04:05"), e.Type, round, e.ParticipantID, e.Payload)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&cfg.roundID, "round", "", "filter by round id")
	cmd.Flags().StringVar(&cfg.participant, "participant", "", "filter by participant id")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&cfg.tail, "tail", 50, "maximum number of events (0 = all)")

	return cmd
}
