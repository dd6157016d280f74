//go:build linux

package addr

import (
	"fmt"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CtrlBuffer is the precomputed ancillary (sendmsg/recvmsg control)
// buffer for one Path: a source-address pin (IP_PKTINFO / IPV6_PKTINFO,
// forcing egress through the interface whose address matches the path's
// local IP) followed by a traffic-class slot (IP_TOS / IPV6_TCLASS)
// whose single payload byte is overwritten in place before every send.
//
// The buffer is built once in NewCtrlBuffer and its backing array never
// reallocated afterwards: SetTC only ever mutates tcOffset in place
// (Invariant 3).
type CtrlBuffer struct {
	buf      []byte
	tcOffset int
}

// NewCtrlBuffer builds the ancillary buffer pinning egress to localIP.
func NewCtrlBuffer(localIP netip.Addr) (*CtrlBuffer, error) {
	localIP = localIP.Unmap()

	var pktinfo []byte
	var tcHdrLevel, tcHdrType int

	switch {
	case localIP.Is4():
		info := unix.Inet4Pktinfo{Spec_dst: localIP.As4()}
		pktinfo = unix.PktInfo4(&info)
		tcHdrLevel, tcHdrType = unix.SOL_IP, unix.IP_TOS
	case localIP.Is6():
		info := unix.Inet6Pktinfo{Addr: localIP.As16()}
		pktinfo = unix.PktInfo6(&info)
		tcHdrLevel, tcHdrType = unix.SOL_IPV6, unix.IPV6_TCLASS
	default:
		return nil, fmt.Errorf("addr: invalid local IP %v", localIP)
	}

	const tcDataLen = 4 // one native int, as the kernel expects for IP_TOS/IPV6_TCLASS
	tcSpace := unix.CmsgSpace(tcDataLen)

	buf := make([]byte, len(pktinfo)+tcSpace)
	copy(buf, pktinfo)

	tcHdrOff := len(pktinfo)
	h := (*unix.Cmsghdr)(unsafe.Pointer(&buf[tcHdrOff]))
	h.Level = int32(tcHdrLevel)
	h.Type = int32(tcHdrType)
	h.SetLen(unix.CmsgLen(tcDataLen))

	tcOffset := tcHdrOff + unix.CmsgLen(0)

	return &CtrlBuffer{buf: buf, tcOffset: tcOffset}, nil
}

// SetTC idempotently overwrites the traffic-class byte in place.
func (c *CtrlBuffer) SetTC(tc byte) {
	c.buf[c.tcOffset] = tc
	c.buf[c.tcOffset+1] = 0
	c.buf[c.tcOffset+2] = 0
	c.buf[c.tcOffset+3] = 0
}

// Bytes returns the live ancillary-data buffer, suitable for
// net.UDPConn.WriteMsgUDPAddrPort's oob parameter. The pointer remains
// valid for the lifetime of the CtrlBuffer (and therefore the Path
// holding it), per §9's "pointer into the control buffer must remain
// valid for the path's lifetime".
func (c *CtrlBuffer) Bytes() []byte { return c.buf }
