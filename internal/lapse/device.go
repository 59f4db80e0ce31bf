package lapse

import (
	"context"
	"fmt"
	"io"
)

// Decrypt opens an encrypted recording. An empty passkey selects the passkey
// of this device.
func (s *LapseService) Decrypt(ctx context.Context, ciphertext []byte, recordingID, passkey string) ([]byte, error) {
	if passkey == "" {
		d, err := s.ThisDevice(ctx)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, fmt.Errorf("no device identity on this device: %w", ErrNotFound)
		}
		passkey = d.Passkey
	}

	plaintext, err := s.envelope.Decrypt(ctx, ciphertext, recordingID, passkey)
	if err != nil {
		return nil, fmt.Errorf("decrypting recording %s: %w", recordingID, err)
	}
	return plaintext, nil
}

// ThisDevice returns the local identity flagged as this device, or nil if none is stored.
func (s *LapseService) ThisDevice(ctx context.Context) (*Device, error) {
	devices, err := s.store.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	for _, d := range devices {
		if d.ThisDevice {
			return d, nil
		}
	}
	return nil, nil
}

// EnsureDevice returns this device's identity, registering one when needed.
// A remembered identity the registry no longer recognizes is deleted and
// replaced by a fresh registration.
func (s *LapseService) EnsureDevice(ctx context.Context) (*Device, error) {
	d, err := s.ThisDevice(ctx)
	if err != nil {
		return nil, err
	}

	if d != nil {
		ok, err := s.registry.Validate(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("validating device %s: %w", d.ID, err)
		}
		if ok {
			return d, nil
		}

		s.logger.Warn("device no longer recognized, registering again", "device", d.ID)
		if err := s.store.DeleteDevice(ctx, d.ID); err != nil {
			return nil, fmt.Errorf("deleting stale device: %w", err)
		}
	}

	return s.registerDevice(ctx)
}

func (s *LapseService) registerDevice(ctx context.Context) (*Device, error) {
	passkey, err := s.passkeys()
	if err != nil {
		return nil, fmt.Errorf("generating passkey: %w", err)
	}

	id, err := s.registry.Register(ctx, s.deviceName)
	if err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}

	d := &Device{ID: id, Passkey: passkey, ThisDevice: true}
	if err := s.store.SaveDevice(ctx, d); err != nil {
		return nil, fmt.Errorf("saving device: %w", err)
	}

	s.logger.Info("device registered", "device", id)
	return d, nil
}

// ResetDevice forgets this device's identity. The next operation that needs
// one registers a new device. Returns the forgotten ID, or "" if none existed.
func (s *LapseService) ResetDevice(ctx context.Context) (string, error) {
	d, err := s.ThisDevice(ctx)
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", nil
	}
	if err := s.store.DeleteDevice(ctx, d.ID); err != nil {
		return "", fmt.Errorf("deleting device: %w", err)
	}
	s.logger.Info("device identity removed", "device", d.ID)
	return d.ID, nil
}

// ExportDevice writes this device's identity sealed with passphrase.
func (s *LapseService) ExportDevice(ctx context.Context, passphrase string, w io.Writer) error {
	d, err := s.ThisDevice(ctx)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("no device identity to export: %w", ErrNotFound)
	}
	if err := s.sealer.Seal(d, passphrase, w); err != nil {
		return fmt.Errorf("sealing device: %w", err)
	}
	return nil
}

// ImportDevice replaces this device's identity with one exported elsewhere,
// so recordings of that device can be decrypted here.
func (s *LapseService) ImportDevice(ctx context.Context, r io.Reader, passphrase string) (*Device, error) {
	d, err := s.sealer.Open(r, passphrase)
	if err != nil {
		return nil, fmt.Errorf("opening sealed device: %w", err)
	}

	existing, err := s.ThisDevice(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != d.ID {
		if err := s.store.DeleteDevice(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("deleting previous device: %w", err)
		}
	}

	d.ThisDevice = true
	if err := s.store.SaveDevice(ctx, d); err != nil {
		return nil, fmt.Errorf("saving device: %w", err)
	}
	s.logger.Info("device imported", "device", d.ID)
	return d, nil
}
