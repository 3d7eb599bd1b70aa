package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"papercast/internal/ledger"
	"papercast/internal/notifications"
	"papercast/internal/papersource"
	"papercast/internal/pipeline"
	"papercast/internal/storage"
	"papercast/internal/summarize"
	"papercast/internal/tts"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and publish the episode for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := storage.NewGCSStore(runCtx, cfg)
			if err != nil {
				return fmt.Errorf("connect storage: %w", err)
			}
			defer store.Close()

			ledgerStore, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledgerStore.Close()

			source, err := papersource.New(cfg, logger)
			if err != nil {
				return err
			}
			summarizer, err := summarize.New(cfg, logger)
			if err != nil {
				return err
			}
			synthesizer, err := tts.New(cfg, logger)
			if err != nil {
				return err
			}

			orchestrator, err := pipeline.New(pipeline.Deps{
				Config:      cfg,
				Logger:      logger,
				Source:      source,
				Summarizer:  summarizer,
				Synthesizer: synthesizer,
				Store:       store,
				Ledger:      ledgerStore,
				Notifier:    notifications.NewService(cfg),
			})
			if err != nil {
				return err
			}

			result, err := orchestrator.Run(runCtx, dateFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			episode := result.Episode
			fmt.Fprintf(out, "Published episode %s\n", episode.ID)
			fmt.Fprintf(out, "Audio: %s (%s, ~%ds)\n", episode.AudioURL, formatBytes(episode.AudioSize), episode.AudioDuration)
			fmt.Fprintf(out, "Papers: %d, elapsed: %s\n", len(episode.Papers), result.Duration.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Target date (YYYY-MM-DD, default today UTC)")
	return cmd
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
