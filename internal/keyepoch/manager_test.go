package keyepoch

import (
	"testing"

	"pathmux/internal/aead"
	"pathmux/internal/clock"
)

func newTestManager(t *testing.T, aesPreferred bool) *Manager {
	t.Helper()
	var psk [aead.KeySize]byte
	copy(psk[:], []byte("0123456789abcdef0123456789abcdef"))
	m, err := NewManager(psk, aesPreferred)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestBootEpochsAreAllPrivate(t *testing.T) {
	m := newTestManager(t, false)
	if m.current.encrypt.Raw() != m.private.encrypt.Raw() {
		t.Errorf("current != private at boot")
	}
	if m.next.encrypt.Raw() != m.private.encrypt.Raw() {
		t.Errorf("next != private at boot")
	}
	if m.last.encrypt.Raw() != m.private.encrypt.Raw() {
		t.Errorf("last != private at boot")
	}
	if m.UseNext() {
		t.Errorf("UseNext() = true at boot, want false")
	}
}

func TestSetKeyResetsEpochs(t *testing.T) {
	m := newTestManager(t, false)
	var newKey [aead.KeySize]byte
	for i := range newKey {
		newKey[i] = byte(i)
	}
	if err := m.SetKey(newKey[:]); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if m.GetKey()[0] != 0 || m.GetKey()[1] != 1 {
		t.Errorf("GetKey() = %v, want to start 0,1,...", m.GetKey())
	}
	if m.current.encrypt.Raw() != m.private.encrypt.Raw() {
		t.Errorf("SetKey did not reset current to private")
	}
}

func TestSetKeyRejectsShortKey(t *testing.T) {
	m := newTestManager(t, false)
	if err := m.SetKey([]byte("short")); err == nil {
		t.Errorf("SetKey(short) = nil error, want error")
	}
}

// TestKeyxConvergence drives two managers through simultaneous KEYX
// exchange (property 6 / scenario S4): after each side processes the
// other's offer at least once, the initiator's use_next latches true
// and both current epochs, once promoted, agree on a shared key.
func TestKeyxConvergence(t *testing.T) {
	a := newTestManager(t, false)
	b := newTestManager(t, false)
	now := clock.Now()

	// Round 1: both offer their initial publics with a zero publicRecv.
	aPub1, aRecv1 := a.PublicSend(), a.PublicRecv()
	bPub1, bRecv1 := b.PublicSend(), b.PublicRecv()
	aReply, err := a.ProcessKeyx(bPub1, bRecv1, now)
	if err != nil {
		t.Fatalf("a.ProcessKeyx round1: %v", err)
	}
	bReply, err := b.ProcessKeyx(aPub1, aRecv1, now)
	if err != nil {
		t.Fatalf("b.ProcessKeyx round1: %v", err)
	}
	if !aReply || !bReply {
		t.Fatalf("round1: both sides should request a reply (aReply=%v bReply=%v)", aReply, bReply)
	}
	if a.UseNext() || b.UseNext() {
		t.Fatalf("round1: neither side has echoed yet, UseNext should be false")
	}

	// Round 2: each side now sends back its *current* public plus the
	// publicRecv it just learned (the peer's round-1 offer) — the
	// natural echo a real KEYX reply carries.
	aPub2, aRecv2 := a.PublicSend(), a.PublicRecv()
	bPub2, bRecv2 := b.PublicSend(), b.PublicRecv()

	if _, err := a.ProcessKeyx(bPub2, bRecv2, now); err != nil {
		t.Fatalf("a.ProcessKeyx round2: %v", err)
	}
	if _, err := b.ProcessKeyx(aPub2, aRecv2, now); err != nil {
		t.Fatalf("b.ProcessKeyx round2: %v", err)
	}

	if !a.UseNext() {
		t.Errorf("a.UseNext() = false after round2, want true (peer echoed our public)")
	}
	if !b.UseNext() {
		t.Errorf("b.UseNext() = false after round2, want true (peer echoed our public)")
	}

	// a encrypts under a.next (since UseNext), b must be able to decrypt
	// it under b.current (after b promotes on first successful trial
	// against b.next — but here b's "next" epoch already holds the
	// matching key because b processed the same exchange).
	plain := []byte("convergence payload")
	nonce := make([]byte, aead.NonceSize)
	ct := a.EncryptKey().Seal(nil, nonce, plain, nil)

	got, kind, err := b.TryDecryptData(nil, nonce, ct, nil)
	if err != nil {
		t.Fatalf("b.TryDecryptData: %v", err)
	}
	if string(got) != string(plain) {
		t.Errorf("decrypted payload = %q, want %q", got, plain)
	}
	if kind != KindNext {
		t.Errorf("decrypted under epoch %v, want next", kind)
	}
}

func TestAESNegotiationRequiresBothFlags(t *testing.T) {
	a := newTestManager(t, true)
	b := newTestManager(t, true)
	now := clock.Now()

	// b learns a's offer first, so the public.recv half b echoes back
	// carries a's AES flag alongside b's own public.send flag.
	if _, err := b.ProcessKeyx(a.PublicSend(), a.PublicRecv(), now); err != nil {
		t.Fatalf("b.ProcessKeyx: %v", err)
	}
	if _, err := a.ProcessKeyx(b.PublicSend(), b.PublicRecv(), now); err != nil {
		t.Fatalf("a.ProcessKeyx: %v", err)
	}
	if !a.next.encrypt.IsAES() {
		t.Errorf("next.encrypt.IsAES() = false, want true when both peers prefer AES")
	}
}

func TestAESNegotiationFalseWhenLocalDoesNotPreferIt(t *testing.T) {
	a := newTestManager(t, false)
	b := newTestManager(t, true)
	now := clock.Now()

	if _, err := a.ProcessKeyx(b.PublicSend(), b.PublicRecv(), now); err != nil {
		t.Fatalf("a.ProcessKeyx: %v", err)
	}
	if a.next.encrypt.IsAES() {
		t.Errorf("next.encrypt.IsAES() = true, want false when local does not prefer AES")
	}
}

func TestTryDecryptDataBadKeyAfterAllTrialsFail(t *testing.T) {
	a := newTestManager(t, false)
	nonce := make([]byte, aead.NonceSize)
	garbage := make([]byte, 32)

	if _, _, err := a.TryDecryptData(nil, nonce, garbage, nil); err == nil {
		t.Fatalf("TryDecryptData on garbage ciphertext = nil error, want error")
	}
	if !a.BadKey() {
		t.Errorf("BadKey() = false after all trials failed, want true")
	}

	a.ClearBadKey()
	if a.BadKey() {
		t.Errorf("BadKey() = true after ClearBadKey, want false")
	}
}

func TestDuePeriodicKeyx(t *testing.T) {
	a := newTestManager(t, false)
	now := clock.Now()
	a.recvTime = 0 // never received — AbsDiff against now will exceed any real timeout

	if !a.DuePeriodicKeyx(now) {
		t.Errorf("DuePeriodicKeyx = false with recvTime stuck at zero, want true")
	}

	a.recvTime = now
	if a.DuePeriodicKeyx(now) {
		t.Errorf("DuePeriodicKeyx = true immediately after recvTime update, want false")
	}
}
