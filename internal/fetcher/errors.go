package fetcher

import "fmt"

// TransportError is returned after all retry attempts for a request are
// exhausted. It carries the last underlying cause; callers decide whether the
// failure is fatal to their extraction or tolerable for a single record.
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: giving up after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx response. It is the retry loop's per-attempt
// failure and the typical cause inside a TransportError.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
