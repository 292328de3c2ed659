package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string

	// Timeout is the default per-request timeout. Default: 30s.
	Timeout time.Duration

	// MaxRetries is the total number of attempts per request. Default: 3.
	MaxRetries int

	// BackoffBase scales the exponential backoff: after attempt n (counting
	// from zero) the fetcher waits BackoffBase * 2^(n+1). Default: 1s.
	BackoffBase time.Duration

	// PerHostRate limits request frequency against a single upstream host.
	// Default: 10 req/s with burst 1, i.e. 100ms minimum spacing, which keeps
	// detail-fetch loops polite even when states run concurrently.
	PerHostRate  rate.Limit
	PerHostBurst int
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.UserAgent == "" {
		o.UserAgent = "schulsync/1.0"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = time.Second
	}
	if o.PerHostRate == 0 {
		o.PerHostRate = 10
	}
	if o.PerHostBurst == 0 {
		o.PerHostBurst = 1
	}
	return o
}

// hostLimiters hands out one rate.Limiter per upstream host, created lazily.
// Shared across sessions so a scraper cannot dodge the politeness policy by
// opening a new session.
type hostLimiters struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.m[host]
	if !ok {
		lim = rate.NewLimiter(h.limit, h.burst)
		h.m[host] = lim
	}
	return lim
}

// HTTPFetcher implements Fetcher using net/http with retry, exponential
// backoff, and per-host rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters *hostLimiters
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	opts = opts.withDefaults()
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{Transport: transport},
		opts:   opts,
		limiters: &hostLimiters{
			m:     make(map[string]*rate.Limiter),
			limit: opts.PerHostRate,
			burst: opts.PerHostBurst,
		},
	}
}

// Session returns a fetcher with its own cookie jar. Retry policy and
// per-host limiters are shared with the parent.
func (f *HTTPFetcher) Session() Fetcher {
	jar, _ := cookiejar.New(nil)
	return &HTTPFetcher{
		client: &http.Client{
			Transport: f.client.Transport,
			Jar:       jar,
		},
		opts:     f.opts,
		limiters: f.limiters,
	}
}

// Get performs a GET request with retry.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return f.do(ctx, http.MethodGet, rawURL, nil, opts)
}

// Post performs a POST request with retry. The body is buffered up front so
// every attempt replays the same bytes.
func (f *HTTPFetcher) Post(ctx context.Context, rawURL string, body io.Reader, opts ...RequestOption) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, eris.Wrap(err, "fetch: read request body")
		}
	}
	return f.do(ctx, http.MethodPost, rawURL, payload, opts)
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string, payload []byte, opts []RequestOption) (*Response, error) {
	cfg := requestConfig{timeout: f.opts.Timeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}
	limiter := f.limiters.get(u.Host)

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}

		resp, err := f.attempt(ctx, method, rawURL, payload, cfg)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt == f.opts.MaxRetries-1 {
			break
		}

		wait := f.opts.BackoffBase * (1 << (attempt + 1))
		zap.L().Warn("request failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.opts.MaxRetries),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if !sleep(ctx, wait) {
			break
		}
	}

	return nil, &TransportError{URL: rawURL, Attempts: f.opts.MaxRetries, Err: lastErr}
}

func (f *HTTPFetcher) attempt(ctx context.Context, method, rawURL string, payload []byte, cfg requestConfig) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		Body:       data,
	}, nil
}

// sleep waits for d or until ctx is done. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
