// Package clientip resolves the origin network address of a request from
// proxy headers. The result is used as the rate limit identifier for
// pre-authentication actions such as sign-in attempts, where no principal
// exists yet.
package clientip

import (
	"net/http"
	"strings"
)

// Loopback is returned when no proxy header identifies the caller,
// which happens for direct or local calls.
const Loopback = "127.0.0.1"

// FromRequest returns the best-effort client address for r.
//
// Precedence: the edge platform's CF-Connecting-IP header, then the first
// comma-separated element of X-Forwarded-For, then X-Real-IP, then the
// loopback fallback. Values are whitespace-trimmed and never validated
// beyond that: a spoofable header is still a stable identifier for
// throttling purposes.
func FromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// The first element is the original client; later elements are
		// appended by each proxy hop.
		first := fwd
		if idx := strings.Index(fwd, ","); idx >= 0 {
			first = fwd[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	return Loopback
}

// Identifier formats addr as a rate limit identifier. Keeping the "ip:"
// prefix distinct from principal identifiers ("user:") means the same
// registry can throttle both without key collisions.
func Identifier(addr string) string {
	return "ip:" + addr
}
