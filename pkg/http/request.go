package http

import (
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	// DeviceIDHeader carries the client-generated device fingerprint
	DeviceIDHeader = "X-Device-ID"

	maxUserAgentLen = 512
	maxDeviceIDLen  = 128
)

// ClientIPResolver extracts the caller's address, trusting forwarding headers
// only when the direct peer sits inside one of the configured proxy ranges.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

// NewClientIPResolver parses the trusted proxy CIDRs. Invalid ranges are skipped.
func NewClientIPResolver(trustedProxies []string) *ClientIPResolver {
	nets := make([]*net.IPNet, 0, len(trustedProxies))
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return &ClientIPResolver{trusted: nets}
}

// ClientIP returns the first valid X-Forwarded-For entry, then X-Real-IP, when
// the request came through a trusted proxy; otherwise the RemoteAddr host.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	remoteIP := remoteAddr(r)

	if c == nil || !c.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, ip := range strings.Split(xff, ",") {
			ip = strings.TrimSpace(ip)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remoteIP
}

func (c *ClientIPResolver) isTrusted(ip string) bool {
	if len(c.trusted) == 0 {
		return false
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, ipNet := range c.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// UserAgent returns the request's User-Agent, truncated for storage
func UserAgent(r *http.Request) string {
	return truncate(r.UserAgent(), maxUserAgentLen)
}

// DeviceID returns the client-supplied device fingerprint, if any
func DeviceID(r *http.Request) string {
	return truncate(strings.TrimSpace(r.Header.Get(DeviceIDHeader)), maxDeviceIDLen)
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// truncate replaces invalid UTF-8 and cuts s to at most n bytes on a rune
// boundary, so the result is always storable in a TEXT column.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
