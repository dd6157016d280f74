package pathtable

import (
	"errors"
	"net/netip"
	"testing"
)

func TestPeerCreatesActivePath(t *testing.T) {
	table := New()
	p, err := table.Peer("uplink0", "10.0.0.1", "10.0.0.2", 5000, false)
	if err != nil {
		t.Fatalf("Peer: %v", err)
	}
	if !p.Active {
		t.Errorf("Active = false, want true")
	}
	if p.BakLocal {
		t.Errorf("BakLocal = true, want false")
	}
	if len(table.Paths()) != 1 {
		t.Fatalf("len(Paths()) = %d, want 1", len(table.Paths()))
	}
}

func TestPeerRejectsZeroPort(t *testing.T) {
	table := New()
	_, err := table.Peer("uplink0", "10.0.0.1", "10.0.0.2", 0, false)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestPeerRejectsBadLiteral(t *testing.T) {
	table := New()
	_, err := table.Peer("uplink0", "not-an-ip", "10.0.0.2", 5000, false)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestPeerRejectsFamilyMismatch(t *testing.T) {
	table := New()
	_, err := table.Peer("uplink0", "10.0.0.1", "fd00::2", 5000, false)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestAtMostOnePathPerKey(t *testing.T) {
	table := New()
	local := netip.MustParseAddr("10.0.0.1")
	remote := netip.MustParseAddrPort("93.184.216.34:5000")

	p1, err := table.LookupOrCreate(local, remote, true)
	if err != nil {
		t.Fatalf("LookupOrCreate #1: %v", err)
	}
	p2, err := table.LookupOrCreate(local, remote, true)
	if err != nil {
		t.Fatalf("LookupOrCreate #2: %v", err)
	}
	if p1 != p2 {
		t.Errorf("LookupOrCreate returned distinct paths for the same key")
	}
	if len(table.Paths()) != 1 {
		t.Errorf("len(Paths()) = %d, want 1", len(table.Paths()))
	}
}

func TestLookupOrCreateNoCreate(t *testing.T) {
	table := New()
	local := netip.MustParseAddr("10.0.0.1")
	remote := netip.MustParseAddrPort("93.184.216.34:5000")

	p, err := table.LookupOrCreate(local, remote, false)
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if p != nil {
		t.Errorf("LookupOrCreate(create=false) on empty table = %v, want nil", p)
	}
	if len(table.Paths()) != 0 {
		t.Errorf("LookupOrCreate(create=false) mutated the table")
	}
}

func TestLookupOrCreateUnmapsV4InV6(t *testing.T) {
	table := New()
	local := netip.MustParseAddr("::ffff:10.0.0.1")
	remote := netip.MustParseAddrPort("[::ffff:93.184.216.34]:5000")

	p, err := table.LookupOrCreate(local, remote, true)
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if !p.LocalAddr.Is4() {
		t.Errorf("LocalAddr = %v, want unmapped v4", p.LocalAddr)
	}
	if !p.RemoteAddr.Addr().Is4() {
		t.Errorf("RemoteAddr = %v, want unmapped v4", p.RemoteAddr)
	}
}

func TestLookupOrCreateRejectsFamilyMismatch(t *testing.T) {
	table := New()
	local := netip.MustParseAddr("10.0.0.1")
	remote := netip.MustParseAddrPort("[fd00::2]:5000")

	_, err := table.LookupOrCreate(local, remote, true)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestPeerReconfiguresExistingPathAsActive(t *testing.T) {
	table := New()
	local := netip.MustParseAddr("10.0.0.1")
	remote := netip.MustParseAddrPort("10.0.0.2:5000")

	discovered, err := table.LookupOrCreate(local, remote, true)
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if discovered.Active {
		t.Fatalf("auto-created path should not be Active")
	}

	reconfigured, err := table.Peer("uplink0", "10.0.0.1", "10.0.0.2", 5000, true)
	if err != nil {
		t.Fatalf("Peer: %v", err)
	}
	if reconfigured != discovered {
		t.Fatalf("Peer() created a second Path instead of promoting the existing one")
	}
	if !reconfigured.Active || !reconfigured.BakLocal {
		t.Errorf("Peer() did not set Active/BakLocal on the promoted path")
	}
	if len(table.Paths()) != 1 {
		t.Errorf("len(Paths()) = %d, want 1 after promotion", len(table.Paths()))
	}
}
