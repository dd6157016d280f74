// Package engine implements the scheduler, control-plane wiring and
// socket lifecycle behind the public tunnel.Engine (spec §4.H).
package engine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"pathmux/internal/addr"
	"pathmux/internal/aead"
	"pathmux/internal/clock"
	"pathmux/internal/ctrl"
	"pathmux/internal/framing"
	"pathmux/internal/keyepoch"
	"pathmux/internal/pathtable"
)

// ErrSocket wraps an underlying syscall/socket error from Recv. Send
// ignores write errors on the socket and never returns ErrSocket.
var ErrSocket = errors.New("engine: socket error")

// ErrMessageTooLarge is returned by Send when the payload exceeds the
// effective MTU (spec §7 InvalidArgument, "plaintext exceeds MTU").
var ErrMessageTooLarge = errors.New("engine: message exceeds effective MTU")

// Engine is the unexported implementation behind tunnel.Engine. It owns
// the UDP socket and all path state; it is not internally synchronized
// — callers must serialize every call into one Engine (spec §5).
type Engine struct {
	conn *net.UDPConn

	v4Enable, v6Enable bool

	table *pathtable.Table
	mgr   *keyepoch.Manager

	mtuLocal    int
	mtuRemote   int
	mtuSendTime clock.Time48

	sendTimeout   clock.Delta
	timeTolerance clock.Delta

	recvBuf [MaxPacketSize]byte
	oobBuf  [256]byte
	sendBuf [MaxPacketSize]byte
}

// Create initializes crypto, binds and configures the socket, and
// returns a ready Engine (spec §6.2).
func Create(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	presharedKey := cfg.PresharedKey
	if presharedKey == ([aead.KeySize]byte{}) {
		if _, err := io.ReadFull(rand.Reader, presharedKey[:]); err != nil {
			return nil, fmt.Errorf("engine: generating random pre-shared key: %w", err)
		}
	}

	mgr, err := keyepoch.NewManager(presharedKey, cfg.AESPreferred)
	if err != nil {
		return nil, fmt.Errorf("engine: initializing crypto: %w", err)
	}

	conn, err := bindSocket(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		conn:          conn,
		v4Enable:      cfg.V4Enable,
		v6Enable:      cfg.V6Enable,
		table:         pathtable.New(),
		mgr:           mgr,
		mtuLocal:      cfg.MTU,
		sendTimeout:   clock.DeltaFromDuration(cfg.sendTimeoutOrDefault()),
		timeTolerance: clock.DeltaFromDuration(cfg.timeToleranceOrDefault()),
	}
	return e, nil
}

// SetKey overwrites the pre-shared key and resets current/next/last to
// private (spec §6.2).
func (e *Engine) SetKey(key []byte) error {
	return e.mgr.SetKey(key)
}

// GetKey copies out the pre-shared key.
func (e *Engine) GetKey() []byte {
	return e.mgr.GetKey()
}

// Peer installs an operator-configured endpoint.
func (e *Engine) Peer(name, localIP, remoteIP string, port uint16, backup bool) error {
	_, err := e.table.Peer(name, localIP, remoteIP, port, backup)
	return err
}

// SetMTU sets the local MTU, 500..1450.
func (e *Engine) SetMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxMTU {
		return fmt.Errorf("engine: SetMTU(%d) outside [%d,%d]: %w", mtu, MinMTU, MaxMTU, ErrInvalidArgument)
	}
	e.mtuLocal = mtu
	return nil
}

// GetMTU returns min(local, remote or local), the effective MTU.
func (e *Engine) GetMTU() int {
	if e.mtuRemote == 0 {
		return e.mtuLocal
	}
	if e.mtuRemote < e.mtuLocal {
		return e.mtuRemote
	}
	return e.mtuLocal
}

// SetSendTimeout sets the per-path control-emission pacing interval.
func (e *Engine) SetSendTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("engine: SetSendTimeout(%v) must be positive: %w", d, ErrInvalidArgument)
	}
	e.sendTimeout = clock.DeltaFromDuration(d)
	return nil
}

// SetTimeTolerance sets the freshness-gate window.
func (e *Engine) SetTimeTolerance(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("engine: SetTimeTolerance(%v) must be positive: %w", d, ErrInvalidArgument)
	}
	e.timeTolerance = clock.DeltaFromDuration(d)
	return nil
}

// Fd exposes the socket so the host can drive Recv/Send from its own
// readiness-based event loop (spec §1).
func (e *Engine) Fd() (uintptr, error) {
	raw, err := e.conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("engine: SyscallConn: %w", err)
	}
	var fd uintptr
	ctrlErr := raw.Control(func(f uintptr) { fd = f })
	if ctrlErr != nil {
		return 0, fmt.Errorf("engine: fd Control: %w", ctrlErr)
	}
	return fd, nil
}

// Close frees paths and closes the socket.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// PathInfo is a read-only snapshot of one path's state, for host-side
// logging/metrics (spec §9.2).
type PathInfo struct {
	LocalAddr  netip.Addr
	RemoteAddr netip.AddrPort
	Active     bool
	Backup     bool
	RTT        time.Duration
	Limit      time.Duration
}

// Paths returns a read-only snapshot of every path's state.
func (e *Engine) Paths() []PathInfo {
	paths := e.table.Paths()
	out := make([]PathInfo, len(paths))
	for i, p := range paths {
		out[i] = PathInfo{
			LocalAddr:  p.LocalAddr,
			RemoteAddr: p.RemoteAddr,
			Active:     p.Active,
			Backup:     p.IsBackup(),
			RTT:        p.Rtt.Duration(),
			Limit:      p.Limit.Duration(),
		}
	}
	return out
}

// Recv reads one datagram. It returns (0, nil) for a dropped or
// control packet, (n, nil) with n > 0 for delivered application data,
// and a non-nil error only for a genuine socket error (spec §6.2).
func (e *Engine) Recv(buf []byte) (int, error) {
	n, oobn, _, remote, err := e.conn.ReadMsgUDPAddrPort(e.recvBuf[:], e.oobBuf[:])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSocket, err)
	}
	pkt := e.recvBuf[:n]
	now := clock.Now()

	localIP, err := addr.ParseLocalAddr(e.oobBuf[:oobn])
	if err != nil {
		return 0, nil // Malformed: absent source-IP ancillary (spec §7)
	}
	remote = addr.Unmap(remote)

	path, err := e.table.LookupOrCreate(localIP, remote, true)
	if err != nil || path == nil {
		return 0, nil // family mismatch or allocation failure: drop
	}

	if framing.IsControl(pkt) {
		e.recvControl(path, pkt, now)
		return 0, nil
	}

	plain, _, sendTime, err := framing.DecodeData(pkt, now, e.timeTolerance, e.mgr)
	if err != nil {
		return 0, nil // AuthFailure/Malformed: dropped, bad_key already set internally
	}

	e.applyIngestBookkeeping(path, now, sendTime)

	n = copy(buf, plain)
	return n, nil
}

func (e *Engine) applyIngestBookkeeping(path *pathtable.Path, now, sendTime clock.Time48) {
	if ctrl.OnPacket(path, now, sendTime) {
		e.emitPong(path, now)
	}
}

func (e *Engine) recvControl(path *pathtable.Path, pkt []byte, now clock.Time48) {
	payload, sendTime, err := framing.DecodeCtrl(pkt, now, e.timeTolerance, e.mgr.PrivateKey())
	if err != nil {
		return // Malformed/AuthFailure: dropped, no state change
	}
	msgType, err := ctrl.ClassifyBySize(len(pkt))
	if err != nil {
		return
	}

	pongDue := ctrl.OnPacket(path, now, sendTime)

	switch msgType {
	case ctrl.MsgPing:
		// OnPacket above already did the only required bookkeeping.
	case ctrl.MsgPong:
		p, err := ctrl.DecodePong(payload)
		if err != nil {
			return
		}
		ctrl.OnPong(path, now, sendTime, p)
	case ctrl.MsgKeyx:
		kp, err := ctrl.DecodeKeyx(payload)
		if err != nil {
			return
		}
		reply, err := e.mgr.ProcessKeyx(kp.PublicSend, kp.PublicRecv, now)
		if err != nil {
			return
		}
		if reply {
			e.emitKeyx(path, now)
		}
	case ctrl.MsgMtux:
		mtu, err := ctrl.DecodeMtux(payload)
		if err != nil {
			return
		}
		r := ctrl.OnMtux(path, e.mtuSendTime != 0, mtu)
		if r.UpdatePeerMTU {
			e.mtuRemote = r.PeerMTU
		}
		if r.ShouldEcho {
			e.emitMtux(path, now)
		}
	case ctrl.MsgBakx:
		local, err := ctrl.DecodeBakx(payload)
		if err != nil {
			return
		}
		r := ctrl.OnBakx(path, local)
		if r.ShouldEcho {
			e.emitBakx(path, now)
		}
	}

	if pongDue {
		e.emitPong(path, now)
	}
}

func (e *Engine) writeRaw(path *pathtable.Path, pkt []byte) {
	var oob []byte
	if path.Ctrl != nil {
		oob = path.Ctrl.Bytes()
	}
	_, _, _ = e.conn.WriteMsgUDPAddrPort(pkt, oob, path.RemoteAddr)
}

func (e *Engine) emitPing(path *pathtable.Path, now clock.Time48) {
	pkt := ctrl.EncodePing(e.sendBuf[:0], now, e.mgr.PrivateKey())
	e.writeRaw(path, pkt)
	path.SendTime = now
}

func (e *Engine) emitPong(path *pathtable.Path, now clock.Time48) {
	pkt := ctrl.EncodePong(e.sendBuf[:0], now, e.mgr.PrivateKey(), ctrl.PongPayload{
		Sdt: path.Sdt,
		Rdt: path.Rdt,
		Rst: path.Rst,
	})
	e.writeRaw(path, pkt)
	ctrl.MarkPongSent(path, now)
}

func (e *Engine) emitKeyx(path *pathtable.Path, now clock.Time48) {
	pkt := ctrl.EncodeKeyx(e.sendBuf[:0], now, e.mgr.PrivateKey(), ctrl.KeyxPayload{
		PublicSend: e.mgr.PublicSend(),
		PublicRecv: e.mgr.PublicRecv(),
	})
	e.writeRaw(path, pkt)
	e.mgr.SetSendTime(now)
}

func (e *Engine) emitMtux(path *pathtable.Path, now clock.Time48) {
	pkt := ctrl.EncodeMtux(e.sendBuf[:0], now, e.mgr.PrivateKey(), e.mtuLocal)
	e.writeRaw(path, pkt)
	e.mtuSendTime = now
}

func (e *Engine) emitBakx(path *pathtable.Path, now clock.Time48) {
	pkt := ctrl.EncodeBakx(e.sendBuf[:0], now, e.mgr.PrivateKey(), path.BakLocal)
	e.writeRaw(path, pkt)
	path.BakSendTime = now
}

// tick runs the per-path control-emission schedule (spec §4.H tick
// phase), in path insertion order.
func (e *Engine) tick(now clock.Time48) {
	for _, p := range e.table.Paths() {
		if !p.Active {
			if e.mgr.BadKey() && clock.AbsDiff(now, e.mgr.SendTime()) >= e.sendTimeout {
				e.emitKeyx(p, now)
				e.mgr.ClearBadKey()
			}
			continue
		}

		if clock.AbsDiff(now, e.mgr.SendTime()) >= e.sendTimeout && e.mgr.DuePeriodicKeyx(now) {
			e.emitKeyx(p, now)
			continue
		}
		if e.mtuRemote == 0 && clock.AbsDiff(now, e.mtuSendTime) >= e.sendTimeout {
			e.emitMtux(p, now)
			continue
		}
		if p.BakLocal && !p.BakRemote && clock.AbsDiff(now, p.BakSendTime) >= e.sendTimeout {
			e.emitBakx(p, now)
			continue
		}
		if p.SendTime == 0 {
			e.emitPing(p, now)
		}
	}
}

// recovering reports whether p has gone silent for at least send_timeout,
// the "fast re-warmup" clause of spec §4.H.
func recovering(p *pathtable.Path, now clock.Time48, sendTimeout clock.Delta) bool {
	return p.RecvTime == 0 || clock.AbsDiff(now, p.RecvTime) >= sendTimeout
}

// Send runs the tick, then transmits payload (if non-empty) on the
// path chosen by the limit-based scheduler (spec §4.H transmit phase).
func (e *Engine) Send(payload []byte, tc byte) (int, error) {
	now := clock.Now()
	e.tick(now)

	if len(payload) == 0 {
		return 0, nil
	}
	if len(payload) > e.GetMTU() {
		return 0, fmt.Errorf("engine: payload %d bytes exceeds effective MTU %d: %w", len(payload), e.GetMTU(), ErrMessageTooLarge)
	}

	key := e.mgr.EncryptKey()
	pkt := framing.EncodeData(e.sendBuf[:0], now, key, payload)

	paths := e.table.Paths()
	var haveNonBackup bool
	var candidate *pathtable.Path
	var candidateLimit clock.Delta

	for _, p := range paths {
		if p.IsBackup() {
			continue
		}
		haveNonBackup = true

		elapsed := now.Sub(p.SendTime)
		var limitNew clock.Delta
		if p.Limit > elapsed {
			limitNew = p.Limit + p.Rtt/2 - elapsed
		} else {
			limitNew = p.Rtt / 2
		}

		if recovering(p, now, e.sendTimeout) {
			p.Limit = limitNew
			e.transmitOn(p, pkt, tc, now)
			continue
		}

		if candidate == nil || limitNew < candidateLimit {
			candidate = p
			candidateLimit = limitNew
		}
	}

	if candidate != nil {
		candidate.Limit = candidateLimit
		e.transmitOn(candidate, pkt, tc, now)
	}

	if !haveNonBackup {
		for _, p := range paths {
			if p.IsBackup() {
				e.transmitOn(p, pkt, tc, now)
				return len(payload), nil
			}
		}
		return 0, nil // no path usable
	}

	return len(payload), nil
}

func (e *Engine) transmitOn(p *pathtable.Path, pkt []byte, tc byte, now clock.Time48) {
	if p.Ctrl != nil {
		p.Ctrl.SetTC(tc)
	}
	e.writeRaw(p, pkt)
	p.SendTime = now
}
