package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jedeschule/schulsync/internal/scraper"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "List available state scrapers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, s := range scraper.DefaultRegistry().All() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s\n", s.Prefix(), s.Key())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statesCmd)
}
