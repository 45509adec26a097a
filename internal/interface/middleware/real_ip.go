package middleware

import (
	"fmt"
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ParseTrustedProxies parses proxy entries given as single IPs or CIDRs.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: invalid IP", e)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// RealIP sets the client IP into Gin context (key: "real_ip").
// Forwarding headers are honored only when the direct peer is one of
// trusted; otherwise the socket address is used. Behind a trusted peer:
// 1) CF-Connecting-IP (Cloudflare)
// 2) X-Forwarded-For, right-most hop that is not itself a trusted proxy
// 3) X-Real-IP
// 4) the peer address
func RealIP(trusted []*net.IPNet) gin.HandlerFunc {
	return func(c *gin.Context) {
		peer := c.RemoteIP()
		ip := peer
		if isTrusted(trusted, net.ParseIP(peer)) {
			if fwd := forwardedIP(c, trusted); fwd != "" {
				ip = fwd
			}
		}
		c.Set("real_ip", ip)
		c.Next()
	}
}

func forwardedIP(c *gin.Context, trusted []*net.IPNet) string {
	if ip := net.ParseIP(strings.TrimSpace(c.GetHeader("CF-Connecting-IP"))); ip != nil {
		return ip.String()
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		var last net.IP
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			last = ip
			if !isTrusted(trusted, ip) {
				return ip.String()
			}
		}
		if last != nil {
			return last.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(c.GetHeader("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ""
}

func isTrusted(trusted []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
