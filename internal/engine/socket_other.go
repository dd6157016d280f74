//go:build !linux

package engine

import (
	"fmt"
	"net"
)

// bindSocket opens the engine's UDP socket. Off Linux, source-address
// ancillary data and don't-fragment / PMTU options are not wired
// (spec §6.1's PKTINFO and IP_MTU_DISCOVER paths are Linux-specific);
// the socket still functions, just without egress-interface pinning or
// kernel PMTU discovery — GetMTU never auto-adjusts on this platform.
func bindSocket(cfg Config) (*net.UDPConn, error) {
	network, addr := socketNetworkAndAddr(cfg)
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, fmt.Errorf("engine: bind %s %v: %w", network, addr, err)
	}
	return conn, nil
}

func socketNetworkAndAddr(cfg Config) (string, *net.UDPAddr) {
	switch {
	case cfg.V4Enable && cfg.V6Enable:
		return "udp", &net.UDPAddr{IP: net.IPv6unspecified, Port: cfg.Port}
	case cfg.V6Enable:
		return "udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: cfg.Port}
	default:
		return "udp4", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port}
	}
}
