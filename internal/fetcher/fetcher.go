// Package fetcher is the sole point of contact with the network. It performs
// outbound GET/POST requests with bounded retry, exponential backoff, and
// per-host rate limiting, so individual scrapers never talk to net/http
// directly.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Response is a fully-read HTTP response. Bodies from the school directories
// are small enough that buffering them beats streaming for every caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
}

// Fetcher defines the transport operations scrapers may use.
type Fetcher interface {
	// Get performs a GET request with retry.
	Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error)

	// Post performs a POST request with retry. The body is buffered so it can
	// be replayed across attempts.
	Post(ctx context.Context, url string, body io.Reader, opts ...RequestOption) (*Response, error)

	// Session returns a Fetcher that shares this fetcher's retry policy and
	// rate limiters but keeps its own cookie jar. Scrapers that need a
	// token/session handshake (Niedersachsen, Hessen) run it on a session so
	// cookies never leak between concurrently-running states.
	Session() Fetcher
}

// RequestOption customizes a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	headers map[string]string
	timeout time.Duration
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithTimeout overrides the fetcher's default per-request timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(c *requestConfig) { c.timeout = d }
}
