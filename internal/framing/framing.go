// Package framing implements the on-wire packet formats, nonce
// derivation and multi-epoch decryption trial described in spec §4.F.
package framing

import (
	"errors"
	"fmt"

	"pathmux/internal/aead"
	"pathmux/internal/clock"
	"pathmux/internal/keyepoch"
)

// Header sizes, bit-exact with spec §6.
const (
	TimestampSize = 6  // MUD_U48_SIZE
	TagSize       = 16 // MUD_MAC_SIZE
	CtrlHeaderLen = 2 * TimestampSize
)

// ErrMalformed is returned for packets too short to hold a header and
// tag; always dropped silently by the caller, never surfaced. Stale
// timestamps return ErrStale, and control-size classification lives in
// package ctrl.
var ErrMalformed = errors.New("framing: malformed packet")

// ErrStale is returned when the header timestamp falls outside the
// configured time tolerance (property 4).
var ErrStale = errors.New("framing: timestamp outside tolerance")

// nonce96 builds the 12-byte AEAD nonce both supported ciphers take:
// the 6-byte little-endian timestamp followed by six zero bytes. The
// wire carries only the 48-bit timestamp; the zero padding is implicit.
func nonce96(t clock.Time48) [aead.NonceSize]byte {
	var n [aead.NonceSize]byte
	clock.WriteU48(n[:TimestampSize], t)
	return n
}

// IsControl reports whether pkt carries the control-packet sentinel (six
// leading zero bytes), per §4.F's wire discriminator.
func IsControl(pkt []byte) bool {
	if len(pkt) < TimestampSize {
		return false
	}
	for _, b := range pkt[:TimestampSize] {
		if b != 0 {
			return false
		}
	}
	return true
}

// EncodeData appends an encrypted data packet to dst: a 6-byte
// timestamp (doubling as nonce low bytes and AAD) followed by
// ciphertext and a 16-byte tag.
func EncodeData(dst []byte, now clock.Time48, key aead.Key, plaintext []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, TimestampSize)...)
	clock.WriteU48(dst[start:], now)
	aad := dst[start : start+TimestampSize]
	nonce := nonce96(now)
	return key.Seal(dst, nonce[:], plaintext, aad)
}

// DecodeData validates freshness and attempts decryption under the
// manager's four epochs in order (current, next, last, private),
// returning which epoch succeeded. The caller is responsible for
// dropping the packet without further state change on any returned
// error (property 1).
func DecodeData(pkt []byte, now clock.Time48, tolerance clock.Delta, mgr *keyepoch.Manager) (plain []byte, used keyepoch.Kind, sendTime clock.Time48, err error) {
	if len(pkt) < TimestampSize+TagSize {
		return nil, 0, 0, ErrMalformed
	}
	sendTime = clock.ReadU48(pkt[:TimestampSize])
	if clock.AbsDiff(now, sendTime) >= tolerance {
		return nil, 0, sendTime, ErrStale
	}

	aad := pkt[:TimestampSize]
	ciphertext := pkt[TimestampSize:]
	nonce := nonce96(sendTime)

	plain, used, err = mgr.TryDecryptData(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, 0, sendTime, err
	}
	return plain, used, sendTime, nil
}

// EncodeCtrl appends an authenticated (not encrypted) control packet:
// a zero sentinel, a 6-byte timestamp, the message payload, and a
// 16-byte tag covering all of the above. Control packets are always
// authenticated under the private (long-term) key (spec §4.F).
func EncodeCtrl(dst []byte, now clock.Time48, privateKey aead.Key, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, CtrlHeaderLen)...)
	// bytes[start:start+6] are already zero (the sentinel).
	clock.WriteU48(dst[start+TimestampSize:], now)
	dst = append(dst, payload...)

	aad := dst[start:]
	nonce := nonce96(now)
	return privateKey.Seal(dst, nonce[:], nil, aad)
}

// DecodeCtrl authenticates a control packet (caller has already
// confirmed IsControl) and returns its timestamp and payload.
func DecodeCtrl(pkt []byte, now clock.Time48, tolerance clock.Delta, privateKey aead.Key) (payload []byte, sendTime clock.Time48, err error) {
	if len(pkt) < CtrlHeaderLen+TagSize {
		return nil, 0, ErrMalformed
	}
	sendTime = clock.ReadU48(pkt[TimestampSize:CtrlHeaderLen])
	if clock.AbsDiff(now, sendTime) >= tolerance {
		return nil, sendTime, ErrStale
	}

	aad := pkt[:len(pkt)-TagSize]
	ciphertext := pkt[len(pkt)-TagSize:]
	nonce := nonce96(sendTime)

	if _, err := privateKey.Open(nil, nonce[:], ciphertext, aad); err != nil {
		return nil, sendTime, fmt.Errorf("framing: control auth failed: %w", err)
	}
	return aad[CtrlHeaderLen:], sendTime, nil
}

// PacketLen returns the total on-wire length of an encoded control
// packet carrying a K-byte payload.
func PacketLen(payloadLen int) int {
	return CtrlHeaderLen + payloadLen + TagSize
}
