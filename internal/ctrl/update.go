package ctrl

import (
	"pathmux/internal/clock"
	"pathmux/internal/pathtable"
)

// PongTimeout is the minimum interval between PONG emissions on a given
// path (spec §6 PONG_TIMEOUT).
const PongTimeout = clock.Delta(100_000) // 100ms in microseconds

// ewma implements x <- (new + 7*x) / 8, spec §4.G's smoothing rule.
func ewma(current, sample clock.Delta) clock.Delta {
	return (sample + 7*current) / 8
}

// OnPacket applies the per-path bookkeeping common to every received
// data or control packet (spec §4.G): it updates the local
// inter-arrival EWMA (Rdt) and the peer inter-send EWMA (Sdt), folds in
// the two-stage seed rule from spec §9, then advances Rst/RecvTime.
// It reports whether a PONG is now due on this path.
func OnPacket(p *pathtable.Path, now, sendTime clock.Time48) (pongDue bool) {
	if p.RecvTime != 0 {
		localGap := clock.Time48(now.Sub(p.RecvTime))
		peerGap := clock.Time48(sendTime.Sub(p.Rst))
		if !p.EwmaSeeded() {
			// Second packet ever: seed without smoothing.
			p.Rdt = clock.Delta(localGap)
			p.Sdt = clock.Delta(peerGap)
			p.MarkEwmaSeeded()
		} else {
			p.Rdt = ewma(p.Rdt, clock.Delta(localGap))
			p.Sdt = ewma(p.Sdt, clock.Delta(peerGap))
		}
	}
	// First packet ever (RecvTime == 0): leave Rdt/Sdt at zero.

	p.Rst = sendTime
	p.RecvTime = now

	if p.IsBackup() {
		return false
	}
	if clock.AbsDiff(now, p.PongTime) < PongTimeout && p.PongTime != 0 {
		return false
	}
	return true
}

// MarkPongSent records that a PONG was just emitted on p.
func MarkPongSent(p *pathtable.Path, now clock.Time48) {
	p.PongTime = now
}

// OnPong folds a received PONG's echoed metrics into the path, computing
// the peer-observed delay and round-trip time (spec §4.G).
func OnPong(p *pathtable.Path, now, sendTime clock.Time48, pong PongPayload) {
	p.RSdt = pong.Sdt
	p.RRdt = pong.Rdt
	p.RRst = pong.Rst
	p.RDt = sendTime.Sub(pong.Rst)
	p.Rtt = now.Sub(pong.Rst)
}

// MtuxResult tells the caller whether to echo an MTUX in reply, and
// whether PeerMTU should overwrite the caller's stored remote MTU.
type MtuxResult struct {
	PeerMTU       int
	UpdatePeerMTU bool
	ShouldEcho    bool
}

// OnMtux applies an inbound MTUX: the peer's MTU is recorded only if we
// did not initiate the exchange, so a reply to our own probe can't
// override a value we already trust; a non-active (ingest-discovered)
// path echoes back so the peer learns our MTU too (spec §4.G).
func OnMtux(p *pathtable.Path, weInitiated bool, peerMTU int) MtuxResult {
	r := MtuxResult{}
	if !weInitiated {
		r.PeerMTU = peerMTU
		r.UpdatePeerMTU = true
	}
	if !p.Active {
		r.ShouldEcho = true
	}
	return r
}

// BakxResult tells the caller whether to echo a BAKX in reply.
type BakxResult struct {
	ShouldEcho bool
}

// OnBakx applies an inbound BAKX. It always sets BakRemote from the
// payload; on a non-active path it also echoes back and sets BakLocal —
// an asymmetric rule preserved verbatim from the source (spec §9 open
// question: this may be a backup-topology propagation mechanism or a
// bug that forcibly demotes auto-discovered paths).
func OnBakx(p *pathtable.Path, payloadLocal bool) BakxResult {
	p.BakRemote = payloadLocal
	if !p.Active {
		p.BakLocal = true
		return BakxResult{ShouldEcho: true}
	}
	return BakxResult{}
}
