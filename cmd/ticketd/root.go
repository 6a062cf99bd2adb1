package main

import (
	"os"

	"ticketgate/internal/config"
	"ticketgate/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var env *viper.Viper

var rootCmd = &cobra.Command{
	Use:   "ticketd",
	Short: "Ticket issuance service with bearer-token authentication",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(env.GetString("LOG_LEVEL"), env.GetString("LOG_FORMAT"))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	return config.FromViper(env)
}

func init() {
	env = config.NewEnvViper()

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = env.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = env.BindPFlag("LOG_FORMAT", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
