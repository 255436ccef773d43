package ratelimit

import (
	"net"
	"net/netip"
	"strings"
)

// ResolveClientID derives the limiter key for a request. Authenticated callers
// key on their user ID regardless of source address; anonymous callers key on
// the first X-Forwarded-For hop, then X-Real-IP, then the direct peer address.
func ResolveClientID(userID, forwardedFor, realIP, remoteAddr string) string {
	if userID != "" {
		return "user:" + userID
	}

	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := normalizeIP(first); ip != "" {
			return "ip:" + ip
		}
	}
	if ip := normalizeIP(realIP); ip != "" {
		return "ip:" + ip
	}
	if ip := normalizeIP(remoteAddr); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// normalizeIP strips ports, brackets and IPv4-in-IPv6 mapping so the same
// host always yields the same key.
func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	raw = strings.Trim(raw, "[]")

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return addr.Unmap().WithZone("").String()
}
