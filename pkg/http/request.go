package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
)

// UnknownClientIP is reported when the request carries no usable address, so
// every such request shares one guard bucket instead of escaping it.
const UnknownClientIP = "0.0.0.0"

// IPConfig lists the proxies whose forwarding headers are believed. Entries
// are CIDR ranges or bare addresses; unparsable entries are ignored.
type IPConfig struct {
	TrustedProxies []string

	once     sync.Once
	prefixes []netip.Prefix
}

func (c *IPConfig) trusted() []netip.Prefix {
	c.once.Do(func() {
		for _, entry := range c.TrustedProxies {
			entry = strings.TrimSpace(entry)
			if p, err := netip.ParsePrefix(entry); err == nil {
				c.prefixes = append(c.prefixes, p.Masked())
				continue
			}
			if a, err := netip.ParseAddr(entry); err == nil {
				a = a.Unmap()
				c.prefixes = append(c.prefixes, netip.PrefixFrom(a, a.BitLen()))
			}
		}
	})
	return c.prefixes
}

func (c *IPConfig) isTrusted(a netip.Addr) bool {
	if c == nil {
		return false
	}
	for _, p := range c.trusted() {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the canonical client address for r. Forwarding
// headers count only when the peer is a trusted proxy. X-Forwarded-For is
// walked from the right and the first hop outside the trusted ranges wins,
// since everything left of it was written by the client.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer, ok := remoteAddr(r)
	if !ok {
		return UnknownClientIP
	}
	if !config.isTrusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		var leftmost netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			a, ok := parseAddr(hops[i])
			if !ok {
				continue
			}
			leftmost = a
			if !config.isTrusted(a) {
				return a.String()
			}
		}
		if leftmost.IsValid() {
			return leftmost.String()
		}
	}

	if a, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return a.String()
	}
	return peer.String()
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return parseAddr(host)
}

// parseAddr accepts one address and folds IPv4-mapped IPv6 forms and zones
// away, so one client always yields one key.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap().WithZone(""), true
}
