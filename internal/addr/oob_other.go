//go:build !linux

package addr

import (
	"errors"
	"net/netip"
)

// ErrNoPktinfo is returned when local-address ancillary data is
// unavailable (always, on this platform).
var ErrNoPktinfo = errors.New("addr: PKTINFO ancillary data not supported on this platform")

// ParseLocalAddr is unimplemented outside Linux; callers fall back to
// the socket's bound address.
func ParseLocalAddr(oob []byte) (netip.Addr, error) {
	return netip.Addr{}, ErrNoPktinfo
}
