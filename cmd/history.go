package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/rehearse/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent practice runs from the local journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.EventRepo().RecentRuns(context.Background(), limit)
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No practice runs found.")
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-19s  %-20s  %-8s  %-8s  %-6s  %s\n",
			"Run", "Started", "Session", "Recorded", "Uploaded", "Failed", "Outcome")
		fmt.Fprintln(out, strings.Repeat("─", 120))

		for _, r := range runs {
			session := r.SessionID
			if session == "" {
				session = "-"
			}
			if len(session) > 20 {
				session = session[:20]
			}
			fmt.Fprintf(out, "%-36s  %-19s  %-20s  %-8d  %-8d  %-6d  %s\n",
				r.RunID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				session,
				r.Recorded,
				r.Uploaded,
				r.Failed,
				outcome(r),
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show every journaled event of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().RoomEvents(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintf(out, "No events for run %s.\n", args[0])
			return nil
		}

		fmt.Fprintf(out, "%-6s  %-19s  %-14s  %-8s  %-36s  %-9s  %s\n",
			"Seq", "Timestamp", "Action", "Question", "Attempt", "Bytes", "Error")
		fmt.Fprintln(out, strings.Repeat("─", 120))

		for _, e := range events {
			question := "-"
			if e.QuestionIndex >= 0 {
				question = fmt.Sprintf("%d", e.QuestionIndex+1)
			}
			attempt := e.AttemptID
			if attempt == "" {
				attempt = "-"
			}
			fmt.Fprintf(out, "%-6d  %-19s  %-14s  %-8s  %-36s  %-9d  %s\n",
				e.Sequence,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Action,
				question,
				attempt,
				e.Bytes,
				e.ErrorMessage,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	historyCmd.AddCommand(historyShowCmd)
}

func openJournal(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func outcome(r store.RunSummary) string {
	switch {
	case r.Completed:
		return "completed"
	case r.Canceled:
		return "canceled"
	}
	return "incomplete"
}
