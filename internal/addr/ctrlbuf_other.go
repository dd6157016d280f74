//go:build !linux

package addr

import "net/netip"

// CtrlBuffer is the portable fallback: platforms other than Linux do not
// get a PKTINFO/TOS ancillary pin from this package, so sends fall back
// to whatever source address and traffic class the OS routing table
// picks. See SPEC_FULL.md §6.1.
type CtrlBuffer struct{}

// NewCtrlBuffer always succeeds on non-Linux platforms; it carries no
// ancillary data.
func NewCtrlBuffer(localIP netip.Addr) (*CtrlBuffer, error) {
	return &CtrlBuffer{}, nil
}

// SetTC is a no-op outside Linux.
func (c *CtrlBuffer) SetTC(tc byte) {}

// Bytes always returns nil outside Linux.
func (c *CtrlBuffer) Bytes() []byte { return nil }
