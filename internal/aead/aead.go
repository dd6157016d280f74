// Package aead dispatches between AES-256-GCM and ChaCha20-Poly1305,
// the two AEAD suites the tunnel supports per key epoch.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of a raw AEAD key.
const KeySize = 32

// NonceSize is the size of the nonce both supported ciphers consume.
const NonceSize = chacha20poly1305.NonceSize // 12

// ErrAuthFailed is returned by Open when the tag does not verify.
var ErrAuthFailed = errors.New("aead: authentication failed")

// Key wraps an AEAD primitive plus a precomputed state: for AES-256-GCM
// the precomputed round-key/GCM tables live inside the cipher.AEAD built
// at NewKey time; for ChaCha20-Poly1305 there is no precomputation to do,
// per spec.
type Key struct {
	raw    [KeySize]byte
	aead   cipher.AEAD
	isAES  bool
	cipher string // for diagnostics only
}

// NewKey builds a Key over raw, selecting AES-256-GCM when preferAES is
// true, otherwise ChaCha20-Poly1305.
func NewKey(raw [KeySize]byte, preferAES bool) (Key, error) {
	if preferAES {
		block, err := aes.NewCipher(raw[:])
		if err != nil {
			return Key{}, fmt.Errorf("aead: aes key schedule: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return Key{}, fmt.Errorf("aead: aes-gcm init: %w", err)
		}
		return Key{raw: raw, aead: gcm, isAES: true, cipher: "aes-256-gcm"}, nil
	}

	c, err := chacha20poly1305.New(raw[:])
	if err != nil {
		return Key{}, fmt.Errorf("aead: chacha20poly1305 init: %w", err)
	}
	return Key{raw: raw, aead: c, isAES: false, cipher: "chacha20-poly1305"}, nil
}

// IsAES reports whether this Key uses AES-256-GCM (true) or
// ChaCha20-Poly1305 (false).
func (k Key) IsAES() bool { return k.isAES }

// Valid reports whether the key has been initialized via NewKey.
func (k Key) Valid() bool { return k.aead != nil }

// Raw returns the underlying 32-byte key material.
func (k Key) Raw() [KeySize]byte { return k.raw }

// Seal encrypts plaintext in place of dst (which may be plaintext[:0] for
// an in-place append) under nonce and aad, appending the 16-byte tag.
func (k Key) Seal(dst, nonce, plaintext, aad []byte) []byte {
	return k.aead.Seal(dst, nonce, plaintext, aad)
}

// Open authenticates and decrypts ciphertext (which includes the trailing
// tag) under nonce and aad.
func (k Key) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	plain, err := k.aead.Open(dst, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plain, nil
}

// Overhead returns the AEAD tag size (16 bytes for both suites here).
func (k Key) Overhead() int { return k.aead.Overhead() }

// Equal reports whether two raw keys are identical, in constant time.
func Equal(a, b [KeySize]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
