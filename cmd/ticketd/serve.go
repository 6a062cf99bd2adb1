package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"ticketgate/internal/infra/db"
	httpinfra "ticketgate/internal/infra/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		store, err := db.NewStore(cfg)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		migrate, _ := cmd.Flags().GetBool("migrate")
		if migrate && store.DB != nil {
			log.Info().Msg("running migrations")
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		srv := httpinfra.NewServer(cfg, store)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		log.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to listen on (overrides HTTP_ADDR)")
	_ = env.BindPFlag("HTTP_ADDR", serveCmd.Flags().Lookup("addr"))

	serveCmd.Flags().Bool("migrate", true, "create the tickets table before serving")
}
