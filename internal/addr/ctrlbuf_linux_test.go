//go:build linux

package addr

import (
	"net/netip"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCtrlBufferParsesAsPktinfoPlusTOS(t *testing.T) {
	cb, err := NewCtrlBuffer(netip.MustParseAddr("10.0.0.1"))
	if err != nil {
		t.Fatalf("NewCtrlBuffer: %v", err)
	}

	cb.SetTC(0x2E) // DSCP EF, arbitrary non-zero traffic class

	msgs, err := unix.ParseSocketControlMessage(cb.Bytes())
	if err != nil {
		t.Fatalf("ParseSocketControlMessage: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d control messages, want 2 (PKTINFO + TOS)", len(msgs))
	}

	if msgs[0].Header.Level != unix.SOL_IP || msgs[0].Header.Type != unix.IP_PKTINFO {
		t.Errorf("first cmsg = level %d type %d, want IP_PKTINFO", msgs[0].Header.Level, msgs[0].Header.Type)
	}
	if msgs[1].Header.Level != unix.SOL_IP || msgs[1].Header.Type != unix.IP_TOS {
		t.Errorf("second cmsg = level %d type %d, want IP_TOS", msgs[1].Header.Level, msgs[1].Header.Type)
	}
	if msgs[1].Data[0] != 0x2E {
		t.Errorf("TOS byte = %#x, want 0x2e", msgs[1].Data[0])
	}
}

func TestCtrlBufferSetTCIdempotent(t *testing.T) {
	cb, err := NewCtrlBuffer(netip.MustParseAddr("fd00::1"))
	if err != nil {
		t.Fatalf("NewCtrlBuffer: %v", err)
	}

	before := append([]byte(nil), cb.Bytes()...)
	cb.SetTC(7)
	cb.SetTC(7)
	after := cb.Bytes()

	if len(before) != len(after) {
		t.Fatalf("SetTC reallocated the buffer: len %d -> %d", len(before), len(after))
	}
}
