// Package scraper collects school directory records from the sixteen German
// Bundesländer. Each state publishes through its own independently-operated
// source (GeoJSON/WFS, WFS XML, JSON APIs, CSV exports, HTML with
// session/token handling); one StateScraper per state normalizes that source
// into the shared model.School shape. The Registry maps state keys to
// scrapers and the Engine runs them with per-state fault isolation.
package scraper

import (
	"context"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/model"
)

// StateScraper defines the interface each state data source must implement.
type StateScraper interface {
	// Key returns the registry key (e.g. "berlin", "nordrhein-westfalen").
	Key() string

	// Prefix returns the state's ID namespace (e.g. "BE", "NW"). Every
	// record a scraper emits carries an ID of the form "{prefix}-{native key}".
	Prefix() string

	// Scrape retrieves and normalizes the state's full school directory.
	// A returned error means the whole state failed; single malformed
	// upstream records are skipped internally, never fatal.
	Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error)
}
