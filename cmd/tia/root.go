package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/tia-chat/internal/config"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

func execute() {
	rootCmd := &cobra.Command{
		Use:           "tia",
		Short:         "Tia demo chat backend and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to TOML config file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the persistent --config flag and sets up logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := observability.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return cfg, err
	}
	return cfg, nil
}
