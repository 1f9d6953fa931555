package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/haven/internal/state"
	"github.com/user/haven/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionExportCmd, sessionCrisesCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect archived sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's archived sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		archive := state.NewArchiveStore(cfg.DataDir)

		sessions, err := archive.ListByUser(context.Background(), types.UserID(args[0]))
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stdout, "no archived sessions")
			return nil
		}
		for _, s := range sessions {
			peak := types.RiskNone
			for _, a := range s.Assessments {
				if a.Level.Rank() > peak.Rank() {
					peak = a.Level
				}
			}
			fmt.Fprintf(os.Stdout, "%s  started %s  turns %d  peak risk %s\n",
				s.ID, s.StartTime.Format("2006-01-02 15:04"), len(s.Assessments), peak)
		}
		return nil
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <user-id>",
	Short: "Export a user's sessions and crisis records as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		archive := state.NewArchiveStore(cfg.DataDir)
		crises := state.NewCrisisLog(cfg.DataDir)
		ctx := context.Background()
		userID := types.UserID(args[0])

		sessions, err := archive.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		events, err := crises.ListByUser(ctx, userID)
		if err != nil {
			return err
		}

		export := types.UserExport{
			UserID:      userID,
			GeneratedAt: time.Now(),
			Sessions:    sessions,
			Crises:      events,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(export)
	},
}

var sessionCrisesCmd = &cobra.Command{
	Use:   "crises <user-id>",
	Short: "List a user's crisis audit entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		crises := state.NewCrisisLog(cfg.DataDir)

		events, err := crises.ListByUser(context.Background(), types.UserID(args[0]))
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(os.Stdout, "no crisis events")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(os.Stdout, "%s  %s  level %s  session %s\n",
				e.At.Format("2006-01-02 15:04"), e.ID, e.Level, e.SessionID)
		}
		return nil
	},
}
