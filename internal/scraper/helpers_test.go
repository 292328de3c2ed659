package scraper

import (
	"github.com/jedeschule/schulsync/internal/fetcher"
)

// testFetcher builds a fetcher tuned for httptest servers: a single attempt
// per request and no meaningful rate limiting, so failure paths resolve fast.
func testFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		MaxRetries:   1,
		PerHostRate:  100000,
		PerHostBurst: 1000,
	})
}
