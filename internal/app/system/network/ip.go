// Package network provides small helpers for working with request network data.
package network

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP from the request, preferring reverse-proxy
// headers over RemoteAddr. When X-Forwarded-For carries a chain, the first
// entry is the originating client.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
