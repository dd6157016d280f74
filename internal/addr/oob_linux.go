//go:build linux

package addr

import (
	"errors"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrNoPktinfo is returned when an inbound packet's ancillary data
// carries no IP_PKTINFO/IPV6_PKTINFO record (spec §7 Malformed: "absent
// source-IP ancillary").
var ErrNoPktinfo = errors.New("addr: no PKTINFO in ancillary data")

// ParseLocalAddr extracts the destination address the kernel delivered
// a packet on from recvmsg ancillary data, so the path table can key on
// (local IP, remote sockaddr) for inbound traffic exactly as it does for
// operator-configured peers.
func ParseLocalAddr(oob []byte) (netip.Addr, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, m := range msgs {
		switch {
		case m.Header.Level == unix.SOL_IP && m.Header.Type == unix.IP_PKTINFO:
			if len(m.Data) >= 12 {
				// Inet4Pktinfo{Ifindex int32; Spec_dst [4]byte; Addr [4]byte}.
				// Addr (not Spec_dst) is the packet's destination address
				// on ingest — the field the kernel fills on recvmsg.
				var a [4]byte
				copy(a[:], m.Data[8:12])
				return netip.AddrFrom4(a), nil
			}
		case m.Header.Level == unix.SOL_IPV6 && m.Header.Type == unix.IPV6_PKTINFO:
			if len(m.Data) >= 16 {
				// Inet6Pktinfo{Addr [16]byte; Ifindex uint32}
				var a [16]byte
				copy(a[:], m.Data[:16])
				return netip.AddrFrom16(a).Unmap(), nil
			}
		}
	}
	return netip.Addr{}, ErrNoPktinfo
}
