package tunnel

import (
	"bytes"
	"testing"
)

// newLoopbackPair builds two engines sharing a pre-shared key, bound
// to adjacent loopback ports, each configured with the other as its
// sole peer — the harness for S1/S2 (spec §8).
func newLoopbackPair(t *testing.T, portA, portB int) (a, b *Engine) {
	t.Helper()
	var psk [32]byte
	copy(psk[:], []byte("tunneltestpresharedkey0123456789"))

	cfgA := Config{Port: portA, V4Enable: true, MTU: 1400, PresharedKey: psk}
	cfgB := Config{Port: portB, V4Enable: true, MTU: 1400, PresharedKey: psk}

	a, err := Create(cfgA)
	if err != nil {
		t.Fatalf("Create(a): %v", err)
	}
	b, err = Create(cfgB)
	if err != nil {
		a.Close()
		t.Fatalf("Create(b): %v", err)
	}

	if err := a.Peer("b", "127.0.0.1", "127.0.0.1", uint16(portB), false); err != nil {
		t.Fatalf("a.Peer: %v", err)
	}
	if err := b.Peer("a", "127.0.0.1", "127.0.0.1", uint16(portA), false); err != nil {
		t.Fatalf("b.Peer: %v", err)
	}
	return a, b
}

// TestPeerSetup is scenario S1: create + peer installs exactly one
// active, non-backup path.
func TestPeerSetup(t *testing.T) {
	a, b := newLoopbackPair(t, 17751, 17752)
	defer a.Close()
	defer b.Close()

	paths := a.Paths()
	if len(paths) != 1 {
		t.Fatalf("len(Paths()) = %d, want 1", len(paths))
	}
	if !paths[0].Active {
		t.Errorf("path.Active = false, want true")
	}
	if paths[0].Backup {
		t.Errorf("path.Backup = true, want false")
	}
}

// TestPSKSymmetryRoundTrip is scenario S2: identical pre-shared keys,
// one Send over loopback results in the other's Recv returning the
// same bytes.
func TestPSKSymmetryRoundTrip(t *testing.T) {
	a, b := newLoopbackPair(t, 17753, 17754)
	defer a.Close()
	defer b.Close()

	payload := []byte("hello")
	n, err := a.Send(payload, 0)
	if err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("a.Send returned %d, want %d", n, len(payload))
	}

	// The first Send also triggers a tick-phase KEYX on this brand-new
	// path, so the data packet may arrive after a dropped (0, nil)
	// control read; drain until the payload shows up.
	buf := make([]byte, 1500)
	for i := 0; i < 5; i++ {
		got, err := b.Recv(buf)
		if err != nil {
			t.Fatalf("b.Recv: %v", err)
		}
		if got == 0 {
			continue
		}
		if !bytes.Equal(buf[:got], payload) {
			t.Errorf("b.Recv = %q, want %q", buf[:got], payload)
		}
		return
	}
	t.Fatalf("b.Recv never returned the application payload after 5 reads")
}

func TestSetMTURange(t *testing.T) {
	a, _ := newLoopbackPair(t, 17755, 17756)
	defer a.Close()

	if err := a.SetMTU(499); err == nil {
		t.Errorf("SetMTU(499) = nil error, want error")
	}
	if err := a.SetMTU(1451); err == nil {
		t.Errorf("SetMTU(1451) = nil error, want error")
	}
	if err := a.SetMTU(1300); err != nil {
		t.Errorf("SetMTU(1300) = %v, want nil", err)
	}
	if got := a.GetMTU(); got != 1300 {
		t.Errorf("GetMTU() = %d, want 1300", got)
	}
}
