// Package keyepoch implements the long-term/current/next/last key
// epochs, the X25519 ephemeral handshake and AES/ChaCha20 cipher
// negotiation described in spec §4.E.
package keyepoch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"pathmux/internal/aead"
	"pathmux/internal/clock"
)

// PublicKeySize is the size of a serialized handshake public half:
// a 32-byte X25519 point plus one AES-capability byte (spec MUD_PKEY_SIZE).
const PublicKeySize = 33

// KeyxTimeout is the period after which a KEYX is re-emitted even with
// no pending handshake, per spec §4.E.
const KeyxTimeout = clock.Delta(60 * 60 * 1_000_000) // 60 minutes, in microseconds

// ErrInvalidArgument flags a pre-shared key shorter than aead.KeySize.
var ErrInvalidArgument = errors.New("keyepoch: invalid argument")

// Manager owns the four key epochs and the ephemeral handshake state
// for one Engine. It is not safe for concurrent use, matching the
// engine's single-threaded contract (spec §5).
type Manager struct {
	aesPreferred bool

	private epoch
	current epoch
	next    epoch
	last    epoch

	secret     [32]byte // X25519 scalar for the local half of the current handshake
	publicSend [PublicKeySize]byte
	publicRecv [PublicKeySize]byte

	useNext bool
	badKey  bool

	sendTime clock.Time48 // last KEYX we sent
	recvTime clock.Time48 // last KEYX we received (or processed)
}

// NewManager derives the private epoch from presharedKey (used as given,
// including the zero value) and the AES-preferred setting, and generates
// the first ephemeral handshake keypair.
func NewManager(presharedKey [aead.KeySize]byte, aesPreferred bool) (*Manager, error) {
	m := &Manager{aesPreferred: aesPreferred}
	if err := m.setPrivate(presharedKey); err != nil {
		return nil, err
	}
	if err := m.regenerateHandshakeKeypair(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) setPrivate(key [aead.KeySize]byte) error {
	k, err := aead.NewKey(key, m.aesPreferred)
	if err != nil {
		return fmt.Errorf("keyepoch: installing private key: %w", err)
	}
	m.private = newPrivateEpoch(k)
	// On boot (or SetKey), current = next = last = private, per spec.
	m.current = m.private
	m.next = m.private
	m.last = m.private
	m.useNext = false
	return nil
}

// SetKey overwrites the pre-shared key; size must be at least
// aead.KeySize bytes (only the first KeySize bytes are used).
func (m *Manager) SetKey(key []byte) error {
	if len(key) < aead.KeySize {
		return fmt.Errorf("keyepoch: SetKey: key too short (%d < %d): %w", len(key), aead.KeySize, ErrInvalidArgument)
	}
	var raw [aead.KeySize]byte
	copy(raw[:], key)
	return m.setPrivate(raw)
}

// GetKey copies out the pre-shared key.
func (m *Manager) GetKey() []byte {
	raw := m.private.encrypt.Raw()
	out := make([]byte, aead.KeySize)
	copy(out, raw[:])
	return out
}

func (m *Manager) regenerateHandshakeKeypair() error {
	var secret [32]byte
	if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
		return fmt.Errorf("keyepoch: generating X25519 scalar: %w", err)
	}
	public, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("keyepoch: deriving X25519 public point: %w", err)
	}

	m.secret = secret
	copy(m.publicSend[:32], public)
	if m.aesPreferred {
		m.publicSend[32] = 1
	} else {
		m.publicSend[32] = 0
	}
	return nil
}

// PublicSend returns the 33-byte public half to offer in a KEYX message.
func (m *Manager) PublicSend() [PublicKeySize]byte { return m.publicSend }

// PublicRecv returns the peer's offered public half (zero until received).
func (m *Manager) PublicRecv() [PublicKeySize]byte { return m.publicRecv }

// UseNext reports whether encryption must currently use the next epoch
// (the peer has confirmed the new key).
func (m *Manager) UseNext() bool { return m.useNext }

// CurrentKey returns the current epoch's encrypt key, independent of
// UseNext — observability for callers that need to see a rotation
// promotion land (spec §8 S4), rather than which epoch is active for
// outbound encryption.
func (m *Manager) CurrentKey() aead.Key { return m.current.encrypt }

// BadKey reports whether decryption has failed under all epochs,
// scheduling a KEYX on the next control tick.
func (m *Manager) BadKey() bool { return m.badKey }

// ClearBadKey resets the bad-key flag once the scheduler has emitted
// the resulting KEYX.
func (m *Manager) ClearBadKey() { m.badKey = false }

// SendTime / RecvTime / SetSendTime track KEYX scheduling.
func (m *Manager) SendTime() clock.Time48     { return m.sendTime }
func (m *Manager) RecvTime() clock.Time48     { return m.recvTime }
func (m *Manager) SetSendTime(t clock.Time48) { m.sendTime = t }

// DuePeriodicKeyx reports whether recv_time is older than KeyxTimeout,
// the periodic re-trigger independent of handshake completion (§4.E).
func (m *Manager) DuePeriodicKeyx(now clock.Time48) bool {
	return clock.AbsDiff(now, m.recvTime) >= KeyxTimeout
}

// EncryptKey returns the epoch currently used for outbound data: next
// when UseNext, else current (Invariant 6).
func (m *Manager) EncryptKey() aead.Key {
	if m.useNext {
		return m.next.encrypt
	}
	return m.current.encrypt
}

// PrivateKey returns the long-term key, used to authenticate every
// control packet regardless of ephemeral epoch state (spec §4.F).
func (m *Manager) PrivateKey() aead.Key {
	return m.private.encrypt
}
