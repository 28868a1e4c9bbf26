// Package netpolicy holds small, verb-agnostic HTTP retry primitives
// shared by ru's outbound clients.
package netpolicy

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryAfterDelay parses a Retry-After header (either delay-seconds or
// an HTTP-date form) into a duration. The caller applies its own cap and
// its own fallback backoff curve when ok is false.
func RetryAfterDelay(headers http.Header) (time.Duration, bool) {
	if headers == nil {
		return 0, false
	}
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0, true
		}
		return d, true
	}
	return 0, false
}
