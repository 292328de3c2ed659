package model

import (
	"strings"
)

// Clean trims surrounding whitespace. Whitespace-only input becomes "".
func Clean(s string) string {
	return strings.TrimSpace(s)
}

// CleanJoin trims each part and joins the non-empty ones with sep.
func CleanJoin(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// First returns the first non-empty value after trimming, or "".
func First(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Digits keeps only the decimal digits of s. Used to normalize phone and fax
// numbers that upstream sources format inconsistently.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ZeroPad left-pads s with zeros to the given width. Sources that store
// numeric keys as integers lose leading zeros; this restores them.
func ZeroPad(s string, width int) string {
	s = strings.TrimSpace(s)
	if s == "" || len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
