// Command storefront runs the pastry shop API and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patisserie-labs/storefront/internal/config"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "storefront",
	Short:         "Pastry shop storefront and back office API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional dotenv file loaded before the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "storefront:", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the process logger.
func loadConfig(component string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(component, logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	return cfg, log, nil
}
