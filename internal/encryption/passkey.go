package encryption

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	passkeySpace = 1_000_000

	// passkeyLimit is the largest multiple of passkeySpace that fits in a
	// uint32. Draws at or above it are rejected so every passkey is equally likely.
	passkeyLimit = (1 << 32) / passkeySpace * passkeySpace
)

// NewPasskey returns a uniformly distributed 6-digit passkey.
func NewPasskey() (string, error) {
	return GeneratePasskey(rand.Reader)
}

// GeneratePasskey draws a 6-digit passkey from r using rejection sampling.
func GeneratePasskey(r io.Reader) (string, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		n := binary.BigEndian.Uint32(buf[:])
		if n >= passkeyLimit {
			continue
		}
		return fmt.Sprintf("%06d", n%passkeySpace), nil
	}
}
