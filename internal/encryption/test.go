package encryption

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"lapse-go/internal/lapse"
)

// testHeader is prepended by TestEnvelope so sealed output clearly differs
// from plaintext while staying deterministic and reversible.
var testHeader = []byte("LAPSETST")

// TestEnvelope is a fast, deterministic lapse.Envelope for tests. It prepends
// a header and a tag of (recordingID, passkey), so opening with the wrong
// passkey still fails like the real envelope does. It provides no secrecy.
type TestEnvelope struct{}

var _ lapse.Envelope = (*TestEnvelope)(nil)

// NewTestEnvelope creates a new TestEnvelope.
func NewTestEnvelope() *TestEnvelope {
	return &TestEnvelope{}
}

func testTag(recordingID, passkey string) []byte {
	sum := sha256.Sum256([]byte(recordingID + "\x00" + passkey))
	return sum[:8]
}

func (e *TestEnvelope) Encrypt(ctx context.Context, plaintext []byte, recordingID, passkey string) (*lapse.Sealed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(testHeader)+8+len(plaintext))
	out = append(out, testHeader...)
	out = append(out, testTag(recordingID, passkey)...)
	out = append(out, plaintext...)
	return &lapse.Sealed{Ciphertext: out}, nil
}

func (e *TestEnvelope) Decrypt(ctx context.Context, ciphertext []byte, recordingID, passkey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := len(testHeader) + 8
	if len(ciphertext) < prefix || !bytes.Equal(ciphertext[:len(testHeader)], testHeader) {
		return nil, fmt.Errorf("invalid test envelope header: %w", lapse.ErrCryptoFailure)
	}
	if !bytes.Equal(ciphertext[len(testHeader):prefix], testTag(recordingID, passkey)) {
		return nil, fmt.Errorf("test envelope tag mismatch: %w", lapse.ErrCryptoFailure)
	}
	return append([]byte{}, ciphertext[prefix:]...), nil
}
