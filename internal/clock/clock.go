// Package clock implements the 48-bit microsecond timestamp used as the
// tunnel's nonce, freshness gate and EWMA clock.
package clock

import "time"

// Time48 is a 48-bit wall-clock microsecond counter. It wraps around
// roughly every 8.9 years; callers must only compare two Time48 values
// through AbsDiff, never by direct subtraction.
type Time48 uint64

// Delta is the signed difference between two Time48 samples, in
// microseconds, already folded into the 48-bit space (see Sub).
type Delta int64

const mask48 = (uint64(1) << 48) - 1

// Now returns the current wall-clock time as a masked 48-bit microsecond
// counter.
func Now() Time48 {
	t := time.Now()
	usec := uint64(t.Unix())*1_000_000 + uint64(t.Nanosecond())/1000
	return Time48(usec & mask48)
}

// Sub returns a-b, folded into the 48-bit signed range so that wraparound
// near the 2^48 boundary still yields the correct small delta.
func (a Time48) Sub(b Time48) Delta {
	d := int64(uint64(a)-uint64(b)) << 16 >> 16
	return Delta(d)
}

// AbsDiff returns the symmetric absolute difference between a and b,
// tolerant of 48-bit wraparound.
func AbsDiff(a, b Time48) Delta {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// WriteU48 packs t into the first 6 bytes of dst, little-endian, matching
// the on-wire nonce/timestamp encoding.
func WriteU48(dst []byte, t Time48) {
	_ = dst[5]
	v := uint64(t)
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
	dst[4] = byte(v >> 32)
	dst[5] = byte(v >> 40)
}

// ReadU48 unpacks a little-endian 48-bit counter from the first 6 bytes
// of src.
func ReadU48(src []byte) Time48 {
	_ = src[5]
	v := uint64(src[0]) |
		uint64(src[1])<<8 |
		uint64(src[2])<<16 |
		uint64(src[3])<<24 |
		uint64(src[4])<<32 |
		uint64(src[5])<<40
	return Time48(v & mask48)
}

// DeltaFromDuration converts a time.Duration to a microsecond Delta.
func DeltaFromDuration(d time.Duration) Delta {
	return Delta(d.Microseconds())
}

// Duration converts a microsecond Delta back to a time.Duration.
func (d Delta) Duration() time.Duration {
	return time.Duration(d) * time.Microsecond
}
