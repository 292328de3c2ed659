package scraper

import (
	"fmt"
	"strings"
)

// UnknownStateError is returned when a requested state key is not in the
// registry. It is always a caller-input error and never retried.
type UnknownStateError struct {
	Key   string
	Valid []string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state %q (valid: %s)", e.Key, strings.Join(e.Valid, ", "))
}
