package keyepoch

import "pathmux/internal/aead"

// epoch bundles the directional AEAD keys for one key generation.
// Encrypt and decrypt are identical only for the private (long-term)
// epoch; ephemeral epochs derive distinct per-direction keys (spec
// §4.E step 6).
type epoch struct {
	encrypt aead.Key
	decrypt aead.Key
}

func newPrivateEpoch(k aead.Key) epoch {
	return epoch{encrypt: k, decrypt: k}
}

// Kind identifies which of the four epochs a packet decrypted under.
type Kind int

const (
	KindCurrent Kind = iota
	KindNext
	KindLast
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindCurrent:
		return "current"
	case KindNext:
		return "next"
	case KindLast:
		return "last"
	case KindPrivate:
		return "private"
	default:
		return "unknown"
	}
}
