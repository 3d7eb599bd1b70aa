package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"papercast/internal/catalog"
	"papercast/internal/podcast"
	"papercast/internal/storage"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Inspect published episodes",
	}
	episodesCmd.AddCommand(newEpisodesListCommand(ctx))
	episodesCmd.AddCommand(newEpisodesShowCommand(ctx))
	episodesCmd.AddCommand(newEpisodesLatestCommand(ctx))
	return episodesCmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeRepo()

			page, err := repo.FindPage(cmd.Context(), 0, limitFlag)
			if err != nil {
				return err
			}
			if len(page.Episodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No episodes published")
				return nil
			}

			rows := make([][]string, 0, len(page.Episodes))
			for _, episode := range page.Episodes {
				rows = append(rows, []string{
					episode.ID,
					episode.Title,
					strconv.Itoa(len(episode.Papers)),
					(time.Duration(episode.AudioDuration) * time.Second).String(),
					formatBytes(episode.AudioSize),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Date", "Title", "Papers", "Duration", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d episodes\n", len(page.Episodes), page.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum episodes to list")
	return cmd
}

func newEpisodesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <date>",
		Short: "Show one episode with its papers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeRepo()

			episode, err := repo.FindByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEpisode(cmd, episode)
			return nil
		},
	}
}

func newEpisodesLatestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently published episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeRepo()

			episode, err := repo.FindLatest(cmd.Context())
			if err != nil {
				return err
			}
			printEpisode(cmd, episode)
			return nil
		},
	}
}

func printEpisode(cmd *cobra.Command, episode *podcast.Episode) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", episode.Title, episode.ID)
	fmt.Fprintf(out, "Audio: %s\n", episode.AudioURL)
	fmt.Fprintf(out, "Duration: ~%ds, size: %s\n\n", episode.AudioDuration, formatBytes(episode.AudioSize))

	rows := make([][]string, 0, len(episode.Papers))
	for i, paper := range episode.Papers {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			paper.Title,
			joinWithLimit(paper.Authors, 3),
			strconv.Itoa(paper.Upvotes),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Paper", "Authors", "Upvotes"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
}

func openRepository(ctx *commandContext, cmd *cobra.Command) (*catalog.Repository, func(), error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := ctx.ensureLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewGCSStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect storage: %w", err)
	}
	repo, err := catalog.NewRepository(store, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return repo, func() { _ = store.Close() }, nil
}

func joinWithLimit(values []string, limit int) string {
	if len(values) <= limit {
		out := ""
		for i, value := range values {
			if i > 0 {
				out += ", "
			}
			out += value
		}
		return out
	}
	return fmt.Sprintf("%s, +%d more", joinWithLimit(values[:limit], limit), len(values)-limit)
}
