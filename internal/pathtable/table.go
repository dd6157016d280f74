package pathtable

import (
	"errors"
	"fmt"
	"net/netip"

	"pathmux/internal/addr"
)

// ErrInvalidArgument is returned for bad IP literals or a zero port.
var ErrInvalidArgument = errors.New("pathtable: invalid argument")

// Table holds the engine's paths in insertion order. Iteration order is
// insertion order and is stable across ingest (spec §3). n is expected
// to stay small (a handful of uplinks), so a linear scan over a slice —
// not a map — matches both the spec's stated complexity model and the
// "Intrusive linked list → indexed table" guidance of §9.
type Table struct {
	paths []*Path
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Paths returns the live, insertion-ordered slice of paths. Callers must
// not reorder or replace entries; mutate individual *Path fields only.
func (t *Table) Paths() []*Path {
	return t.paths
}

// LookupOrCreate scans for a Path keyed by (localIP, remote); if absent
// and create is true, a new non-active Path is appended and returned.
// Invariant 1: a Path is created only when the two addresses share a
// family. Invariant 2: stored sockaddrs always have v4-in-v6 unmapped.
// Invariant 5: at most one Path exists per (local IP, remote sockaddr).
func (t *Table) LookupOrCreate(localIP netip.Addr, remote netip.AddrPort, create bool) (*Path, error) {
	localIP = localIP.Unmap()
	remote = addr.Unmap(remote)

	for _, p := range t.paths {
		if p.LocalAddr == localIP && p.RemoteAddr == remote {
			return p, nil
		}
	}

	if !create {
		return nil, nil
	}

	if !addr.SameFamily(localIP, remote.Addr()) {
		return nil, fmt.Errorf("pathtable: family mismatch between local %v and remote %v: %w", localIP, remote, ErrInvalidArgument)
	}

	ctrl, err := addr.NewCtrlBuffer(localIP)
	if err != nil {
		return nil, fmt.Errorf("pathtable: building control buffer: %w", err)
	}

	p := &Path{
		LocalAddr:  localIP,
		RemoteAddr: remote,
		Ctrl:       ctrl,
	}
	t.paths = append(t.paths, p)
	return p, nil
}

// Peer installs an operator-configured endpoint. Only IP literals are
// accepted — no DNS resolution (spec §4.D). name is carried for the
// caller's diagnostics only; the table does not index on it.
func (t *Table) Peer(name, localIPStr, remoteIPStr string, port uint16, backup bool) (*Path, error) {
	if port == 0 {
		return nil, fmt.Errorf("pathtable: peer %q: zero port: %w", name, ErrInvalidArgument)
	}

	localIP, err := netip.ParseAddr(localIPStr)
	if err != nil {
		return nil, fmt.Errorf("pathtable: peer %q: invalid local IP %q: %w", name, localIPStr, ErrInvalidArgument)
	}
	remoteIP, err := netip.ParseAddr(remoteIPStr)
	if err != nil {
		return nil, fmt.Errorf("pathtable: peer %q: invalid remote IP %q: %w", name, remoteIPStr, ErrInvalidArgument)
	}

	if !addr.SameFamily(localIP, remoteIP) {
		return nil, fmt.Errorf("pathtable: peer %q: address family mismatch: %w", name, ErrInvalidArgument)
	}

	remote := netip.AddrPortFrom(remoteIP.Unmap(), port)
	localIP = localIP.Unmap()

	for _, p := range t.paths {
		if p.LocalAddr == localIP && p.RemoteAddr == remote {
			p.Active = true
			p.BakLocal = backup
			return p, nil
		}
	}

	ctrl, err := addr.NewCtrlBuffer(localIP)
	if err != nil {
		return nil, fmt.Errorf("pathtable: peer %q: building control buffer: %w", name, err)
	}

	p := &Path{
		Active:     true,
		LocalAddr:  localIP,
		RemoteAddr: remote,
		Ctrl:       ctrl,
		BakLocal:   backup,
	}
	t.paths = append(t.paths, p)
	return p, nil
}
