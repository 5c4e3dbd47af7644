package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

const (
	UnknownIP      = "0.0.0.0 (desconocida)"
	UnknownAgent   = "Unknown"
	localhostLabel = " (localhost)"
)

// DeriveFingerprint returns base64(SHA-256(ip + "|" + userAgent)).
func DeriveFingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// FingerprintsMatch compares a stored binding with a freshly derived one.
// An empty stored value never matches.
func FingerprintsMatch(stored, current string) bool {
	return stored != "" && stored == current
}

// ClientIP resolves the caller address: first X-Forwarded-For entry, then
// X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserAgent returns the request User-Agent or "Unknown".
func UserAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return UnknownAgent
}

// NormalizeIP produces the form used for rate limiting and audit records.
// Blank and unspecified addresses collapse to UnknownIP and loopback
// addresses are tagged, not rewritten.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	switch {
	case ip == "", ip == "0.0.0.0", ip == "::", strings.Contains(ip, "0:0:0:0"):
		return UnknownIP
	case ip == "127.0.0.1", ip == "::1":
		return ip + localhostLabel
	}
	return ip
}
