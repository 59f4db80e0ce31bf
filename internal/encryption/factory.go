package encryption

import (
	"fmt"

	"lapse-go/internal/config"
	"lapse-go/internal/lapse"
)

// NewEnvelopeFromConfig creates an Envelope based on the configuration type.
func NewEnvelopeFromConfig(cfg config.EncryptionConfig) (lapse.Envelope, error) {
	switch cfg.Type {
	case "envelope", "":
		return NewEnvelope(), nil
	case "test":
		return NewTestEnvelope(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
