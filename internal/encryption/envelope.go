package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"lapse-go/internal/lapse"
)

// Fixed labels keyed over the recording ID to derive the two salts.
const (
	KeySaltLabel = "timelapse-key-salt"
	IVSaltLabel  = "timelapse-iv-salt"
)

// Iterations is the PBKDF2 work factor for both the key and the IV.
const Iterations = 100_000

const (
	keySize = 32
	ivSize  = 16
)

// Envelope implements lapse.Envelope.
//
// Key and IV are derived from the passkey with PBKDF2-HMAC-SHA256, salted by
// HMAC-SHA256(label, recordingID). Nothing per recording is stored, so any
// device holding the passkey and the recording ID can decrypt. The derived IV
// is deterministic: each recording ID must only ever encrypt one plaintext.
//
// The cipher is AES-256-GCM using the 16-byte IV as nonce and the recording
// ID as additional data, so a wrong passkey or a damaged ciphertext always
// fails authentication instead of yielding garbage.
//
// Every (recordingID, passkey) pair is accepted, empty strings included:
// HMAC and PBKDF2 are defined for empty inputs.
type Envelope struct {
	iterations int
}

var _ lapse.Envelope = (*Envelope)(nil)

// NewEnvelope creates an Envelope with the standard work factor.
func NewEnvelope() *Envelope {
	return &Envelope{iterations: Iterations}
}

type derivedKey struct {
	key     []byte
	iv      []byte
	keySalt []byte
	ivSalt  []byte
}

func salt(label, recordingID string) []byte {
	mac := hmac.New(sha256.New, []byte(label))
	mac.Write([]byte(recordingID))
	return mac.Sum(nil)
}

func (e *Envelope) derive(ctx context.Context, recordingID, passkey string) (*derivedKey, error) {
	d := &derivedKey{
		keySalt: salt(KeySaltLabel, recordingID),
		ivSalt:  salt(IVSaltLabel, recordingID),
	}
	d.key = pbkdf2.Key([]byte(passkey), d.keySalt, e.iterations, keySize, sha256.New)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.iv = pbkdf2.Key([]byte(passkey), d.ivSalt, e.iterations, ivSize, sha256.New)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("importing key: %v: %w", err, lapse.ErrCryptoFailure)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %v: %w", err, lapse.ErrCryptoFailure)
	}
	return aead, nil
}

// Encrypt seals plaintext in one pass.
func (e *Envelope) Encrypt(ctx context.Context, plaintext []byte, recordingID, passkey string) (*lapse.Sealed, error) {
	d, err := e.derive(ctx, recordingID, passkey)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(d.key)
	if err != nil {
		return nil, err
	}

	return &lapse.Sealed{
		Ciphertext: aead.Seal(nil, d.iv, plaintext, []byte(recordingID)),
		Key:        hex.EncodeToString(d.key),
		IV:         hex.EncodeToString(d.iv),
		KeySalt:    hex.EncodeToString(d.keySalt),
		IVSalt:     hex.EncodeToString(d.ivSalt),
	}, nil
}

// Decrypt re-derives the key and IV and opens ciphertext. Any failure,
// including a wrong passkey, is ErrCryptoFailure.
func (e *Envelope) Decrypt(ctx context.Context, ciphertext []byte, recordingID, passkey string) ([]byte, error) {
	d, err := e.derive(ctx, recordingID, passkey)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(d.key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, d.iv, ciphertext, []byte(recordingID))
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", lapse.ErrCryptoFailure)
	}
	return plaintext, nil
}
