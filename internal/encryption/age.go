package encryption

import (
	"encoding/json"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"lapse-go/internal/lapse"
)

// AgeSealer implements lapse.DeviceSealer with age's scrypt passphrase
// encryption. The sealed identity is ASCII armored so it can be pasted
// between machines.
type AgeSealer struct {
	workFactor int
}

var _ lapse.DeviceSealer = (*AgeSealer)(nil)

// NewAgeSealer creates an AgeSealer using age's default scrypt work factor.
func NewAgeSealer() *AgeSealer {
	return &AgeSealer{}
}

// NewAgeSealerWithWorkFactor sets the scrypt work factor (log2 of N).
// Low values are only suitable for tests.
func NewAgeSealerWithWorkFactor(logN int) *AgeSealer {
	return &AgeSealer{workFactor: logN}
}

type sealedDevice struct {
	ID      string `json:"id"`
	Passkey string `json:"passkey"`
}

// Seal encrypts d with passphrase and writes the armored result to w.
func (s *AgeSealer) Seal(d *lapse.Device, passphrase string, w io.Writer) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	armored := armor.NewWriter(w)
	encWriter, err := age.Encrypt(armored, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if err := json.NewEncoder(encWriter).Encode(sealedDevice{ID: d.ID, Passkey: d.Passkey}); err != nil {
		return fmt.Errorf("writing device: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}
	return nil
}

// Open decrypts a sealed identity. A wrong passphrase is ErrCryptoFailure.
func (s *AgeSealer) Open(r io.Reader, passphrase string) (*lapse.Device, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(armor.NewReader(r), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting device: %v: %w", err, lapse.ErrCryptoFailure)
	}

	var sd sealedDevice
	if err := json.NewDecoder(decReader).Decode(&sd); err != nil {
		return nil, fmt.Errorf("reading device: %w", err)
	}
	if sd.ID == "" || sd.Passkey == "" {
		return nil, fmt.Errorf("sealed device is incomplete")
	}
	return &lapse.Device{ID: sd.ID, Passkey: sd.Passkey}, nil
}
