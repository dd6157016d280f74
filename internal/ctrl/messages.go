// Package ctrl implements the control-plane state machine: PING/PONG,
// KEYX, MTUX and BAKX message encoding, dispatch by exact packet size,
// and the per-path EWMA/state updates triggered on ingest (spec §4.G).
package ctrl

import (
	"errors"

	"pathmux/internal/aead"
	"pathmux/internal/clock"
	"pathmux/internal/framing"
	"pathmux/internal/keyepoch"
)

// MsgType identifies one of the five control messages, distinguished on
// the wire solely by total packet length (spec §9 "tagged control
// messages").
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgPing
	MsgPong
	MsgKeyx
	MsgMtux
	MsgBakx
)

func (m MsgType) String() string {
	switch m {
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgKeyx:
		return "KEYX"
	case MsgMtux:
		return "MTUX"
	case MsgBakx:
		return "BAKX"
	default:
		return "UNKNOWN"
	}
}

// Payload lengths K (spec §6): PING=0, PONG=18, KEYX=2*33, MTUX=6, BAKX=1.
const (
	pingPayloadLen = 0
	pongPayloadLen = 18
	keyxPayloadLen = 2 * keyepoch.PublicKeySize
	mtuxPayloadLen = 6
	bakxPayloadLen = 1
)

// Total on-wire packet sizes, bit-exact with spec §6.
const (
	PingTotal = framing.CtrlHeaderLen + pingPayloadLen + framing.TagSize // 28
	PongTotal = framing.CtrlHeaderLen + pongPayloadLen + framing.TagSize // 46
	KeyxTotal = framing.CtrlHeaderLen + keyxPayloadLen + framing.TagSize // 94
	MtuxTotal = framing.CtrlHeaderLen + mtuxPayloadLen + framing.TagSize // 34
	BakxTotal = framing.CtrlHeaderLen + bakxPayloadLen + framing.TagSize // 29
)

// ErrUnknownSize is returned when a control packet's total length does
// not match any tabulated message size.
var ErrUnknownSize = errors.New("ctrl: unrecognized control packet size")

// ErrMalformed is returned when a payload of the expected length still
// fails to decode (defensive; should not occur given ClassifyBySize).
var ErrMalformed = errors.New("ctrl: malformed control payload")

// ClassifyBySize maps a control packet's total wire length to its
// message type, per spec §9's size-keyed dispatch table.
func ClassifyBySize(total int) (MsgType, error) {
	switch total {
	case PingTotal:
		return MsgPing, nil
	case PongTotal:
		return MsgPong, nil
	case KeyxTotal:
		return MsgKeyx, nil
	case MtuxTotal:
		return MsgMtux, nil
	case BakxTotal:
		return MsgBakx, nil
	default:
		return MsgUnknown, ErrUnknownSize
	}
}

// EncodePing builds a PING control packet (empty payload).
func EncodePing(dst []byte, now clock.Time48, privateKey aead.Key) []byte {
	return framing.EncodeCtrl(dst, now, privateKey, nil)
}

// PongPayload is the peer's self-observed path metrics, echoed so the
// receiver can compute RTT and its own peer-side EWMAs (spec §4.G).
type PongPayload struct {
	Sdt clock.Delta
	Rdt clock.Delta
	Rst clock.Time48
}

// EncodePong builds a PONG control packet.
func EncodePong(dst []byte, now clock.Time48, privateKey aead.Key, p PongPayload) []byte {
	var payload [pongPayloadLen]byte
	clock.WriteU48(payload[0:6], deltaToU48(p.Sdt))
	clock.WriteU48(payload[6:12], deltaToU48(p.Rdt))
	clock.WriteU48(payload[12:18], p.Rst)
	return framing.EncodeCtrl(dst, now, privateKey, payload[:])
}

// DecodePong parses a PONG payload of exactly pongPayloadLen bytes.
func DecodePong(payload []byte) (PongPayload, error) {
	if len(payload) != pongPayloadLen {
		return PongPayload{}, ErrMalformed
	}
	return PongPayload{
		Sdt: clock.Delta(clock.ReadU48(payload[0:6])),
		Rdt: clock.Delta(clock.ReadU48(payload[6:12])),
		Rst: clock.ReadU48(payload[12:18]),
	}, nil
}

// KeyxPayload carries both halves of the sender's X25519 handshake
// offer (spec §4.E).
type KeyxPayload struct {
	PublicSend [keyepoch.PublicKeySize]byte
	PublicRecv [keyepoch.PublicKeySize]byte
}

// EncodeKeyx builds a KEYX control packet.
func EncodeKeyx(dst []byte, now clock.Time48, privateKey aead.Key, p KeyxPayload) []byte {
	var payload [keyxPayloadLen]byte
	copy(payload[:keyepoch.PublicKeySize], p.PublicSend[:])
	copy(payload[keyepoch.PublicKeySize:], p.PublicRecv[:])
	return framing.EncodeCtrl(dst, now, privateKey, payload[:])
}

// DecodeKeyx parses a KEYX payload of exactly keyxPayloadLen bytes.
func DecodeKeyx(payload []byte) (KeyxPayload, error) {
	if len(payload) != keyxPayloadLen {
		return KeyxPayload{}, ErrMalformed
	}
	var p KeyxPayload
	copy(p.PublicSend[:], payload[:keyepoch.PublicKeySize])
	copy(p.PublicRecv[:], payload[keyepoch.PublicKeySize:])
	return p, nil
}

// EncodeMtux builds an MTUX control packet carrying the local MTU.
func EncodeMtux(dst []byte, now clock.Time48, privateKey aead.Key, mtu int) []byte {
	var payload [mtuxPayloadLen]byte
	clock.WriteU48(payload[:], clock.Time48(mtu))
	return framing.EncodeCtrl(dst, now, privateKey, payload[:])
}

// DecodeMtux parses an MTUX payload of exactly mtuxPayloadLen bytes.
func DecodeMtux(payload []byte) (int, error) {
	if len(payload) != mtuxPayloadLen {
		return 0, ErrMalformed
	}
	return int(clock.ReadU48(payload)), nil
}

// EncodeBakx builds a BAKX control packet carrying the local backup flag.
func EncodeBakx(dst []byte, now clock.Time48, privateKey aead.Key, local bool) []byte {
	var payload [bakxPayloadLen]byte
	if local {
		payload[0] = 1
	}
	return framing.EncodeCtrl(dst, now, privateKey, payload[:])
}

// DecodeBakx parses a BAKX payload of exactly bakxPayloadLen bytes.
func DecodeBakx(payload []byte) (bool, error) {
	if len(payload) != bakxPayloadLen {
		return false, ErrMalformed
	}
	return payload[0] != 0, nil
}

func deltaToU48(d clock.Delta) clock.Time48 {
	if d < 0 {
		return 0
	}
	return clock.Time48(d)
}
