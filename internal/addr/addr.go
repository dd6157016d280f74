// Package addr implements the address-equality, v4-in-v6 unwrapping and
// per-path ancillary control-buffer helpers described in spec §4.C.
package addr

import "net/netip"

// Equal reports whether two IP addresses refer to the same host, after
// unmapping any v4-in-v6 representation.
func Equal(a, b netip.Addr) bool {
	return a.Unmap() == b.Unmap()
}

// PortEqual reports whether two full sockaddrs (IP + port) are equal,
// after unmapping any v4-in-v6 representation.
func PortEqual(a, b netip.AddrPort) bool {
	return Unmap(a) == Unmap(b)
}

// Unmap returns ap with a v4-mapped-v6 address rewritten as native v4,
// preserving the port. Invariant 2: every stored sockaddr has v4-in-v6
// unwrapped.
func Unmap(ap netip.AddrPort) netip.AddrPort {
	if u := ap.Addr().Unmap(); u != ap.Addr() {
		return netip.AddrPortFrom(u, ap.Port())
	}
	return ap
}

// SameFamily reports whether local and remote have matching address families
// (both v4 or both v6), after unmapping. Invariant 1: a Path is created
// only when local_addr.family == remote_addr.family.
func SameFamily(local netip.Addr, remote netip.Addr) bool {
	return local.Unmap().Is4() == remote.Unmap().Is4()
}
