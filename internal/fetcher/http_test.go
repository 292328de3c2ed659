package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		PerHostRate: 1000,
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	resp, err := f.Get(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", string(resp.Body))
}

func TestGetHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Get(context.Background(), srv.URL, WithHeader("Accept", "application/geo+json"))
	require.NoError(t, err)
}

func TestPostReplaysBodyAcrossRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"q":"all"}`, string(data))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	resp, err := f.Post(context.Background(), srv.URL, strings.NewReader(`{"q":"all"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("third time lucky"))
	}))
	defer srv.Close()

	base := 20 * time.Millisecond
	f := NewHTTPFetcher(HTTPOptions{
		MaxRetries:  3,
		BackoffBase: base,
		PerHostRate: 1000,
	})

	start := time.Now()
	resp, err := f.Get(context.Background(), srv.URL)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "third time lucky", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
	// Two failures cost 2^1*base + 2^2*base of backoff.
	assert.GreaterOrEqual(t, elapsed, 6*base)
	assert.Less(t, elapsed, 30*base)
}

func TestRetryExhaustionReturnsTransportError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestNon2xxIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("found it"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	resp, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "found it", string(resp.Body))
}

func TestContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		MaxRetries:  3,
		BackoffBase: 10 * time.Second,
		PerHostRate: 1000,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Get(ctx, srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSessionKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s3cret"})
			w.Write([]byte("welcome"))
		case "/data":
			c, err := r.Cookie("session")
			if err != nil || c.Value != "s3cret" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte("private"))
		}
	}))
	defer srv.Close()

	f := newTestFetcher()
	s := f.Session()

	_, err := s.Get(context.Background(), srv.URL+"/login")
	require.NoError(t, err)

	resp, err := s.Get(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	assert.Equal(t, "private", string(resp.Body))
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			w.Write([]byte("with cookie"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "x"})
		w.Write([]byte("no cookie"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	a := f.Session()
	b := f.Session()

	resp, err := a.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "no cookie", string(resp.Body))

	resp, err = a.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "with cookie", string(resp.Body))

	// A separate session does not see the first session's cookie.
	resp, err = b.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "no cookie", string(resp.Body))
}

func TestPerHostSpacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// 20 req/s with burst 1 means roughly 50ms between requests.
	f := NewHTTPFetcher(HTTPOptions{
		MaxRetries:   1,
		PerHostRate:  20,
		PerHostBurst: 1,
	})

	start := time.Now()
	for range 4 {
		_, err := f.Get(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}
