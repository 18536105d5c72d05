// Package accesslist gates pkg/httpapi's chat endpoint by caller source IP,
// the same CIDR-matching mechanics the teacher applies to webhook senders.
package accesslist

import (
	"net"
	"strings"
)

// List is a set of allowed IPs and CIDR ranges.
type List struct {
	allowAll bool
	entries  []*net.IPNet
}

// Parse builds a List from a comma-separated list of IPs or CIDRs. An empty
// value allows every caller.
func Parse(value string) (List, error) {
	if strings.TrimSpace(value) == "" {
		return List{allowAll: true}, nil
	}
	parts := strings.Split(value, ",")
	entries := make([]*net.IPNet, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "/") {
			_, ipnet, err := net.ParseCIDR(trimmed)
			if err != nil {
				return List{}, err
			}
			entries = append(entries, ipnet)
			continue
		}
		ip := net.ParseIP(trimmed)
		if ip == nil {
			return List{}, &net.ParseError{Type: "IP address", Text: trimmed}
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		mask := net.CIDRMask(bits, bits)
		entries = append(entries, &net.IPNet{IP: ip, Mask: mask})
	}
	return List{entries: entries}, nil
}

// Allows reports whether ip is permitted to call the chat API.
func (l List) Allows(ip net.IP) bool {
	if l.allowAll {
		return true
	}
	if ip == nil {
		return false
	}
	for _, entry := range l.entries {
		if entry.Contains(ip) {
			return true
		}
	}
	return false
}

// ExtractClientIP reads the caller's address, preferring a proxy-forwarded
// header (the first hop) over the raw connection address.
func ExtractClientIP(remoteAddr, forwardedFor string) net.IP {
	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		if len(parts) > 0 {
			if parsed := net.ParseIP(strings.TrimSpace(parts[0])); parsed != nil {
				return parsed
			}
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(remoteAddr)
}
