package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghabxph/happy-on-slack/internal/database"
	"github.com/ghabxph/happy-on-slack/internal/logging"
	"github.com/ghabxph/happy-on-slack/internal/repository"
)

func interactionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "interactions <channel-id>",
		Short: "List the latest recorded mentions of a channel",
		Long:  "Reads the interaction log written when ENABLE_DATABASE_PERSISTENCE is on, newest first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.EnableDebug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := database.NewDatabase(ctx, &cfg.Database, logger.Named("database"))
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			repo := repository.NewInteractionRepository(db, logger.Named("repository"))
			recent, err := repo.RecentByChannel(ctx, args[0], limit)
			if err != nil {
				return err
			}

			printInteractions(cmd.OutOrStdout(), recent)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of interactions to show")

	return cmd
}

func printInteractions(w io.Writer, interactions []*repository.Interaction) {
	if len(interactions) == 0 {
		fmt.Fprintln(w, "No interactions recorded.")
		return
	}

	fmt.Fprintf(w, "%-20s  %-10s  %-12s  %-18s  %7s  %6s  %5s\n",
		"TIME", "OUTCOME", "USER", "THREAD", "PROMPT", "REPLY", "TURNS")
	for _, in := range interactions {
		fmt.Fprintf(w, "%-20s  %-10s  %-12s  %-18s  %7d  %6d  %5d\n",
			in.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			in.Outcome, in.UserID, in.ThreadTS,
			in.PromptChars, in.ReplyChars, in.HistoryTurns)
	}
}
