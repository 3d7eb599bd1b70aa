package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"papercast/internal/catalog"
	"papercast/internal/ledger"
	"papercast/internal/server"
	"papercast/internal/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only episode API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			serveCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := storage.NewGCSStore(serveCtx, cfg)
			if err != nil {
				return fmt.Errorf("connect storage: %w", err)
			}
			defer store.Close()

			ledgerStore, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledgerStore.Close()

			repo, err := catalog.NewRepository(store, cfg, logger)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, repo, ledgerStore, logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(serveCtx)
		},
	}
}
