package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jedeschule/schulsync/internal/export"
	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/scraper"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape school directories",
	Long: `Scrape the school directories of the requested Bundesländer.

By default all sixteen states are scraped and a failing state is skipped
with a warning. Use --states for a subset, --on-error raise to abort on
the first failure, and --out/--format to control the output file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "scrape"))

		opts, err := parseScrapeOpts(cmd)
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			outPath = cfg.Export.Path
		}
		format, err := parseFormat(cmd, outPath)
		if err != nil {
			return err
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.HTTP.UserAgent,
			Timeout:      cfg.HTTP.Timeout(),
			MaxRetries:   cfg.HTTP.MaxRetries,
			BackoffBase:  cfg.HTTP.BackoffBase(),
			PerHostRate:  rate.Limit(cfg.HTTP.PerHostRate),
			PerHostBurst: cfg.HTTP.PerHostBurst,
		})
		engine := scraper.NewEngine(scraper.DefaultRegistry(), f)

		log.Info("starting scrape",
			zap.Strings("states", opts.States),
			zap.Int("concurrency", opts.Concurrency),
		)

		report, err := engine.ScrapeAll(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		if err := export.WriteFile(outPath, format, report.Schools); err != nil {
			return err
		}

		fmt.Printf("Wrote %d schools to %s (%d/%d states succeeded, %s)\n",
			len(report.Schools), outPath, report.Succeeded, report.Requested,
			report.Elapsed.Round(time.Second))
		for state, reason := range report.Failed {
			fmt.Printf("  failed: %s: %s\n", state, reason)
		}
		for _, key := range report.Unknown {
			fmt.Printf("  unknown state: %s\n", key)
		}
		if report.Requested > 0 && report.Succeeded == 0 {
			return eris.New("all requested states failed")
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().String("states", "", "comma-separated state keys (e.g., berlin,sachsen)")
	scrapeCmd.Flags().String("on-error", "", "failure policy: skip or raise (default from config)")
	scrapeCmd.Flags().Int("concurrency", 0, "states scraped in parallel (default from config)")
	scrapeCmd.Flags().String("out", "", "output file path (default from config)")
	scrapeCmd.Flags().String("format", "", "output format: json, csv, xlsx (default: by file extension)")
	rootCmd.AddCommand(scrapeCmd)
}

// parseScrapeOpts extracts scraper.RunOpts from command flags, falling back
// to configuration values.
func parseScrapeOpts(cmd *cobra.Command) (scraper.RunOpts, error) {
	statesStr, _ := cmd.Flags().GetString("states")
	onErrorStr, _ := cmd.Flags().GetString("on-error")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	if onErrorStr == "" {
		onErrorStr = cfg.Scrape.OnError
	}
	onError, err := scraper.ParseOnError(onErrorStr)
	if err != nil {
		return scraper.RunOpts{}, err
	}

	if concurrency == 0 {
		concurrency = cfg.Scrape.Concurrency
	}

	opts := scraper.RunOpts{
		OnError:     onError,
		Concurrency: concurrency,
	}
	if statesStr != "" {
		opts.States = splitAndTrim(statesStr)
	}
	return opts, nil
}

// parseFormat resolves the output format from the flag or the file extension.
func parseFormat(cmd *cobra.Command, outPath string) (export.Format, error) {
	formatStr, _ := cmd.Flags().GetString("format")
	if formatStr == "" {
		formatStr = cfg.Export.Format
	}
	if formatStr == "" {
		return export.DetectFormat(outPath), nil
	}
	return export.ParseFormat(formatStr)
}

// splitAndTrim splits a comma-separated flag value, dropping empty entries.
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
