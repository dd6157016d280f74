// Package tunnel is the sole public surface of the multipath encrypted
// UDP tunnel core. internal/* holds every mechanism (path table, AEAD
// framing, key rotation, control-plane state machine, scheduler);
// external callers only ever see Engine, Config and PathInfo.
//
// An Engine is single-threaded and cooperative: it owns its UDP socket
// and all path state, and is not internally synchronized. The host
// (event loop, TUN/TAP device, config file format, log sink, process
// supervisor) must serialize every call into one Engine instance and
// drive Recv/Send from its own readiness-based loop over Fd.
package tunnel

import (
	"time"

	"pathmux/internal/engine"
)

// Config configures Create. See internal/engine.Config for field docs;
// it is re-exported here as the package's only configuration type.
type Config = engine.Config

// PathInfo is a read-only snapshot of one path's state, for host-side
// logging or metrics.
type PathInfo = engine.PathInfo

// Engine is a running tunnel core: one UDP socket, its path table and
// key-epoch state, and the control-plane/scheduler logic that drives
// both.
type Engine struct {
	impl *engine.Engine
}

// Sentinel errors surfaced to callers. AuthFailure and Malformed never
// appear here — per spec they are represented only by a (0, nil) return
// from Recv plus internal bookkeeping (the engine's bad_key flag).
var (
	ErrInvalidArgument = engine.ErrInvalidArgument
	ErrSocket          = engine.ErrSocket
	ErrMessageTooLarge = engine.ErrMessageTooLarge
)

// Create initializes crypto, binds and configures the UDP socket
// described by cfg, and returns a ready Engine.
func Create(cfg Config) (*Engine, error) {
	impl, err := engine.Create(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{impl: impl}, nil
}

// SetKey overwrites the pre-shared key; current/next/last reset to
// derived-from-private.
func (e *Engine) SetKey(key []byte) error { return e.impl.SetKey(key) }

// GetKey copies out the pre-shared key.
func (e *Engine) GetKey() []byte { return e.impl.GetKey() }

// Peer installs an operator-configured endpoint. Only IP literals are
// accepted; name is for the caller's own diagnostics.
func (e *Engine) Peer(name, localIP, remoteIP string, port uint16, backup bool) error {
	return e.impl.Peer(name, localIP, remoteIP, port, backup)
}

// SetMTU sets the local MTU (500..1450).
func (e *Engine) SetMTU(mtu int) error { return e.impl.SetMTU(mtu) }

// GetMTU returns the effective MTU: min(local, remote or local).
func (e *Engine) GetMTU() int { return e.impl.GetMTU() }

// SetSendTimeout sets the per-path control-emission pacing interval
// (default 1s).
func (e *Engine) SetSendTimeout(d time.Duration) error { return e.impl.SetSendTimeout(d) }

// SetTimeTolerance sets the freshness-gate window (default 10min).
func (e *Engine) SetTimeTolerance(d time.Duration) error { return e.impl.SetTimeTolerance(d) }

// Recv reads one datagram. It returns (0, nil) for a dropped or
// control packet, (n, nil) with n > 0 for delivered application data,
// and a non-nil error only for a genuine socket error.
func (e *Engine) Recv(buf []byte) (int, error) { return e.impl.Recv(buf) }

// Send runs the tick (control-plane scheduling) and then transmits buf
// on the path chosen by the latency-based scheduler. tc is the
// per-packet traffic-class byte. Returns (0, nil) if no path is
// currently usable.
func (e *Engine) Send(buf []byte, tc byte) (int, error) { return e.impl.Send(buf, tc) }

// Fd exposes the underlying socket descriptor so the host can drive
// Recv/Send from its own readiness-based event loop.
func (e *Engine) Fd() (uintptr, error) { return e.impl.Fd() }

// Close frees paths and closes the socket.
func (e *Engine) Close() error { return e.impl.Close() }

// Paths returns a read-only snapshot of every path's state, for
// logging or metrics.
func (e *Engine) Paths() []PathInfo { return e.impl.Paths() }
