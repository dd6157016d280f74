// Package pathtable implements the per-path state and the path table
// (lookup/create, operator-configured peers) described in spec §3 and
// §4.D.
package pathtable

import (
	"net/netip"

	"pathmux/internal/addr"
	"pathmux/internal/clock"
)

// Path is a single binding identified by (local IP, remote sockaddr).
// Port is part of the remote sockaddr key; the local IP has no port — it
// is the observed destination address of received packets, used to
// steer subsequent sends out the same interface.
type Path struct {
	// Active is true for locally-configured peer endpoints, false for
	// paths auto-created on ingest.
	Active bool

	LocalAddr  netip.Addr
	RemoteAddr netip.AddrPort
	Ctrl       *addr.CtrlBuffer

	BakLocal    bool
	BakRemote   bool
	BakSendTime clock.Time48

	RecvTime clock.Time48
	SendTime clock.Time48
	PongTime clock.Time48

	Rst clock.Time48 // peer's last send timestamp, echoed from the packet header
	Rdt clock.Delta  // local receive-delta EWMA
	Sdt clock.Delta  // peer send-delta EWMA

	RRst clock.Time48 // peer's echoed rst, from PONG
	RRdt clock.Delta  // peer's echoed rdt, from PONG
	RSdt clock.Delta  // peer's echoed sdt, from PONG
	RDt  clock.Delta  // send_time - r_rst at PONG receipt
	Rtt  clock.Delta  // now - r_rst at PONG receipt

	Limit clock.Delta // scheduling credit, see §4.H

	// ewmaSeeded tracks the two-stage seed described in §9: the very
	// first packet on a path leaves Rdt/Sdt at zero; the second packet
	// seeds them without smoothing; only the third and later packets
	// apply the α=1/8 EWMA blend. This is not itself a spec field —
	// it is the state needed to implement the spec's two-stage rule
	// without conflating "never received" with "received exactly once".
	ewmaSeeded bool
}

// EwmaSeeded reports whether the two-stage EWMA seed has completed.
func (p *Path) EwmaSeeded() bool { return p.ewmaSeeded }

// MarkEwmaSeeded records that the second packet's unsmoothed seed has
// been applied.
func (p *Path) MarkEwmaSeeded() { p.ewmaSeeded = true }

// IsBackup reports whether p is currently excluded from the primary
// send loop: used only if no non-backup path is usable (§3 bak fields).
func (p *Path) IsBackup() bool {
	return p.BakLocal || p.BakRemote
}
