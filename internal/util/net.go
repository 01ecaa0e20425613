package util

import (
	"net"
	"strconv"
	"strings"
)

// NormalizeAddr returns the provided address if it is non-empty (after trimming
// whitespace), or the fallback value if the address is empty or whitespace-only.
//
// Examples:
//
//	NormalizeAddr("",          "127.0.0.1") → "127.0.0.1"
//	NormalizeAddr("0.0.0.0",   "127.0.0.1") → "0.0.0.0"
func NormalizeAddr(addr, fallback string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fallback
	}
	return addr
}

// JoinHostPort renders host:port, bracketing IPv6 literals the way OpenSSH
// expects them in forwarding specs.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostPort is the inverse of JoinHostPort. ok is false when s has no
// port or the port is not an integer.
func SplitHostPort(s string) (host string, port int, ok bool) {
	h, p, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, false
	}
	return h, n, true
}
