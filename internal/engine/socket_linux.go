//go:build linux

package engine

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// bindSocket opens and configures the engine's UDP socket per spec
// §6.1: SO_REUSEADDR, source-address ancillary data enabled for both
// families, don't-fragment via IP_MTU_DISCOVER where supported, and
// IPV6_V6ONLY cleared for a dual-stack bind.
func bindSocket(cfg Config) (*net.UDPConn, error) {
	network, addr := socketNetworkAndAddr(cfg)

	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, fmt.Errorf("engine: bind %s %v: %w", network, addr, err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: SyscallConn: %w", err)
	}

	var setErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		setErr = applySockopts(int(fd), cfg)
	})
	if ctrlErr != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: fd Control: %w", ctrlErr)
	}
	if setErr != nil {
		conn.Close()
		return nil, setErr
	}

	return conn, nil
}

func applySockopts(fd int, cfg Config) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("engine: SO_REUSEADDR: %w", err)
	}

	if cfg.V4Enable {
		if err := unix.SetsockoptInt(fd, unix.SOL_IP, unix.IP_PKTINFO, 1); err != nil {
			return fmt.Errorf("engine: IP_PKTINFO: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.SOL_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO); err != nil {
			return fmt.Errorf("engine: IP_MTU_DISCOVER: %w", err)
		}
	}
	if cfg.V6Enable {
		if err := unix.SetsockoptInt(fd, unix.SOL_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
			return fmt.Errorf("engine: IPV6_RECVPKTINFO: %w", err)
		}
		if cfg.V4Enable {
			if err := unix.SetsockoptInt(fd, unix.SOL_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
				return fmt.Errorf("engine: IPV6_V6ONLY: %w", err)
			}
		}
	}
	return nil
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
