package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "schulsync",
	Short: "Aggregates German school directories into one dataset",
	Long:  "Scrapes the school directories of all sixteen Bundesländer (GeoJSON, WFS, JSON APIs, CSV exports, and HTML portals) and merges them into a single normalized dataset.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
