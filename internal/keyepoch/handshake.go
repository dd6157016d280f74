package keyepoch

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"

	"pathmux/internal/aead"
	"pathmux/internal/clock"
)

// ProcessKeyx implements the handshake steps of spec §4.E upon receiving
// a KEYX message carrying the peer's public.send and public.recv. It
// returns whether we must emit a KEYX back (the peer has not yet
// acknowledged our current public half).
func (m *Manager) ProcessKeyx(peerPublicSend, peerPublicRecv [PublicKeySize]byte, now clock.Time48) (reply bool, err error) {
	// Step 2: sync_send / sync_recv are byte-compares taken before we
	// overwrite our.recv with the peer's offered send half. Only
	// sync_send gates the later steps (3); sync_recv is computed
	// because spec §4.E names it, but step 3 onward never branches on
	// it — kept for parity with the spec's byte-compare pair rather
	// than silently dropped.
	syncSend := !bytes.Equal(peerPublicRecv[:], m.publicSend[:])
	_ = !bytes.Equal(m.publicRecv[:], peerPublicSend[:]) // sync_recv

	m.publicRecv = peerPublicSend

	// Step 3.
	if syncSend {
		reply = true
		m.useNext = false
	} else {
		m.useNext = true
	}

	// Step 4.
	shared, err := curve25519.X25519(m.secret[:], peerPublicSend[:32])
	if err != nil {
		// Low-order / all-zero point: abort silently, per spec.
		return false, nil
	}
	if isZero(shared) {
		return false, nil
	}

	// Step 5: the two directional context bundles, built exactly as
	// spec §4.E step 5 names them. shared_recv's trailing component is
	// our *newly updated* public.recv, which now equals peerPublicSend —
	// the spec's literal construction, preserved as written even though
	// it repeats peerPublicSend.
	sharedSend := concatContext(shared, m.publicSend[:], peerPublicRecv[:])
	sharedRecv := concatContext(shared, peerPublicSend[:], m.publicRecv[:])

	privateKeyBytes := m.private.encrypt.Raw()

	nextEncryptKey, err := derive(sharedSend, privateKeyBytes[:])
	if err != nil {
		return false, fmt.Errorf("keyepoch: deriving next.encrypt key: %w", err)
	}
	nextDecryptKey, err := derive(sharedRecv, privateKeyBytes[:])
	if err != nil {
		return false, fmt.Errorf("keyepoch: deriving next.decrypt key: %w", err)
	}

	// Step 7: AES only when we prefer it and both halves of this KEYX
	// carry the AES flag: the peer's own public.send and its echo of
	// our public.send.
	nextAES := m.aesPreferred && peerPublicSend[32] == 1 && peerPublicRecv[32] == 1

	encKey, err := aead.NewKey(nextEncryptKey, nextAES)
	if err != nil {
		return false, fmt.Errorf("keyepoch: installing next.encrypt key: %w", err)
	}
	decKey, err := aead.NewKey(nextDecryptKey, nextAES)
	if err != nil {
		return false, fmt.Errorf("keyepoch: installing next.decrypt key: %w", err)
	}

	m.next = epoch{encrypt: encKey, decrypt: decKey}

	// Step 8.
	m.recvTime = now
	return reply, nil
}

func concatContext(shared []byte, parts ...[]byte) []byte {
	total := len(shared)
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	out = append(out, shared...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// derive computes BLAKE2b-256(context, key=blakeKey), the directional
// KDF mandated by spec §4.E step 6. Using the long-term private key as
// the keyed-hash key (rather than HKDF) is the wire-compatibility
// choice spec §9 calls out explicitly.
func derive(context, blakeKey []byte) ([aead.KeySize]byte, error) {
	var out [aead.KeySize]byte
	h, err := blake2b.New256(blakeKey)
	if err != nil {
		return out, err
	}
	h.Write(context)
	sum := h.Sum(nil)
	copy(out[:], sum)
	return out, nil
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

// TryDecryptData attempts the four-epoch trial order current, next,
// last, private (spec §4.F). On success under next, it promotes
// current/last and re-initializes next with a fresh ephemeral keypair
// (spec §4.E rotation policy).
func (m *Manager) TryDecryptData(dst, nonce, ciphertext, aad []byte) (plain []byte, used Kind, err error) {
	if plain, err = m.current.decrypt.Open(dst, nonce, ciphertext, aad); err == nil {
		return plain, KindCurrent, nil
	}
	if plain, err = m.next.decrypt.Open(dst, nonce, ciphertext, aad); err == nil {
		m.promoteNext()
		return plain, KindNext, nil
	}
	if plain, err = m.last.decrypt.Open(dst, nonce, ciphertext, aad); err == nil {
		return plain, KindLast, nil
	}
	if plain, err = m.private.decrypt.Open(dst, nonce, ciphertext, aad); err == nil {
		return plain, KindPrivate, nil
	}
	m.badKey = true
	return nil, 0, aead.ErrAuthFailed
}

func (m *Manager) promoteNext() {
	m.last = m.current
	m.current = m.next
	m.useNext = false
	// Re-initialize the handshake with a fresh secret/public.send; the
	// next epoch stays a copy of the new current until the next KEYX is
	// processed. A regeneration error (only possible on an exhausted
	// entropy source) is not reported: the old secret/public.send stay
	// in place.
	if err := m.regenerateHandshakeKeypair(); err != nil {
		return
	}
}
