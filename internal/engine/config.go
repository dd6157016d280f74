package engine

import (
	"errors"
	"fmt"
	"time"

	"pathmux/internal/aead"
)

// ErrInvalidArgument flags a Config field outside its accepted range
// (spec §7 InvalidArgument).
var ErrInvalidArgument = errors.New("engine: invalid argument")

// Default timers (spec §6.3).
const (
	DefaultSendTimeout   = time.Second
	DefaultTimeTolerance = 10 * time.Minute

	MinMTU = 500
	MaxMTU = 1450

	// MaxPacketSize is the stack-buffer size for a single datagram,
	// MUD_PACKET_MAX_SIZE in spec §5.
	MaxPacketSize = 1500
)

// Config configures Create. Zero-valued fields take the defaults noted
// per field, matching tungo's "validate eagerly, return a wrapped error
// naming the bad field" style.
type Config struct {
	// Port to bind locally. Required (must be > 0 and <= 65535).
	Port int

	// V4Enable / V6Enable select which socket families to bind. At
	// least one must be true. If both are true the socket is bound
	// dual-stack on "::" with IPV6_V6ONLY cleared.
	V4Enable bool
	V6Enable bool

	// AESPreferred advertises AES-256-GCM capability during handshake;
	// the cipher is only actually selected when both peers agree.
	AESPreferred bool

	// MTU is the local interface MTU, 500..1450. Required.
	MTU int

	// PresharedKey is the long-term key. If zero-valued, Create
	// generates a random one via crypto/rand (spec §6.2 "generates a
	// random pre-shared key").
	PresharedKey [aead.KeySize]byte

	// SendTimeout / TimeTolerance default to DefaultSendTimeout /
	// DefaultTimeTolerance when zero.
	SendTimeout   time.Duration
	TimeTolerance time.Duration
}

// Validate checks every field Create depends on before any socket or
// crypto state is touched.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("engine: Config.Port %d out of range: %w", c.Port, ErrInvalidArgument)
	}
	if !c.V4Enable && !c.V6Enable {
		return fmt.Errorf("engine: Config: neither V4Enable nor V6Enable set: %w", ErrInvalidArgument)
	}
	if c.MTU < MinMTU || c.MTU > MaxMTU {
		return fmt.Errorf("engine: Config.MTU %d outside [%d,%d]: %w", c.MTU, MinMTU, MaxMTU, ErrInvalidArgument)
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("engine: Config.SendTimeout negative: %w", ErrInvalidArgument)
	}
	if c.TimeTolerance < 0 {
		return fmt.Errorf("engine: Config.TimeTolerance negative: %w", ErrInvalidArgument)
	}
	return nil
}

func (c Config) sendTimeoutOrDefault() time.Duration {
	if c.SendTimeout == 0 {
		return DefaultSendTimeout
	}
	return c.SendTimeout
}

func (c Config) timeToleranceOrDefault() time.Duration {
	if c.TimeTolerance == 0 {
		return DefaultTimeTolerance
	}
	return c.TimeTolerance
}
