package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"papercast/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the pipeline run ledger",
	}
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerStatsCommand(ctx))
	return ledgerCmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <date>",
		Short: "Show the stage trail for an episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			entries, err := store.ForEpisode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No ledger entries for %s\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				duration := ""
				if d := entry.Duration(); d > 0 {
					duration = d.Round(time.Millisecond).String()
				}
				rows = append(rows, []string{
					string(entry.Stage),
					string(entry.Status),
					strconv.Itoa(entry.RetryCount),
					duration,
					entry.ErrorMessage,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Stage", "Status", "Retries", "Duration", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newLedgerStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize ledger entries by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(stats))
			for _, status := range []ledger.Status{ledger.StatusStarted, ledger.StatusRetrying, ledger.StatusCompleted, ledger.StatusFailed} {
				if count, ok := stats[status]; ok {
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Entries"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", store.Path())
			return nil
		},
	}
}
