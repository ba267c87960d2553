package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds the trusted proxy ranges used for client IP extraction
type IPConfig struct {
	trustedProxies []netip.Prefix
}

// NewIPConfig parses trusted proxy CIDR ranges. Bare addresses are accepted as single-host ranges.
func NewIPConfig(cidrs []string) (*IPConfig, error) {
	config := &IPConfig{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			config.trustedProxies = append(config.trustedProxies, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", raw, err)
		}
		config.trustedProxies = append(config.trustedProxies, prefix.Masked())
	}
	return config, nil
}

// ExtractClientIP returns the client address for a request.
// X-Forwarded-For and X-Real-IP are honored only when the direct peer is a trusted proxy,
// otherwise any client could spoof its address through them.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := remoteAddr(r)

	if config != nil && config.trusted(remoteIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if _, err := netip.ParseAddr(ip); err == nil {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if _, err := netip.ParseAddr(xri); err == nil {
				return xri
			}
		}
	}

	return remoteIP
}

func (c *IPConfig) trusted(ip string) bool {
	if len(c.trustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range c.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteAddr strips the port from RemoteAddr
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
