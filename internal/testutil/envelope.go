package testutil

import (
	"lapse-go/internal/encryption"
	"lapse-go/internal/lapse"
)

// NewTestEnvelope creates a fast deterministic envelope for testing.
func NewTestEnvelope() lapse.Envelope {
	return encryption.NewTestEnvelope()
}

// NewTestSealer creates an age sealer with a cheap work factor.
func NewTestSealer() lapse.DeviceSealer {
	return encryption.NewAgeSealerWithWorkFactor(10)
}

// FixedPasskeys returns a passkey generator that hands out the given
// passkeys in order and then repeats the last one.
func FixedPasskeys(passkeys ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		p := passkeys[i]
		if i < len(passkeys)-1 {
			i++
		}
		return p, nil
	}
}
