// Package identity resolves the client identity used as the quota key.
// Resolution is a pure function over a typed metadata structure so the
// trust boundary (which signals are attacker-controllable) stays auditable.
package identity

import (
	"net"
	"strings"
)

// Unknown is the sentinel identity returned when no signal is present.
// All unidentifiable clients share one quota bucket, and the pipeline
// never sees an empty identity.
const Unknown = "unknown"

// RequestMeta carries the request-level signals identity is derived from.
type RequestMeta struct {
	ForwardedFor string // X-Forwarded-For header value, possibly a comma list
	RealIP       string // X-Real-IP header value
	RemoteAddr   string // transport peer address, "host:port" or bare host
}

// Resolve returns the client identity for a request.
//
// Precedence: first hop of X-Forwarded-For (only the nearest trusted proxy
// is assumed to set it correctly), then X-Real-IP, then the transport peer
// address with any port stripped. Resolve never fails; with no signals at
// all it returns Unknown.
func Resolve(meta RequestMeta) string {
	if fwd := strings.TrimSpace(meta.ForwardedFor); fwd != "" {
		first := fwd
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			first = fwd[:i]
		}
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if real := strings.TrimSpace(meta.RealIP); real != "" {
		return real
	}

	if addr := strings.TrimSpace(meta.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		return addr
	}

	return Unknown
}
