package lapse_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"lapse-go/internal/lapse"
)

func TestLapseService_EnsureDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("registers once and reuses the identity", func(t *testing.T) {
		env := newTestEnv(t)

		first, err := env.svc.EnsureDevice(ctx)
		if err != nil {
			t.Fatalf("EnsureDevice() error = %v", err)
		}
		if first.ID != "device-1" || first.Passkey != "111111" || !first.ThisDevice {
			t.Errorf("EnsureDevice() = %+v", first)
		}

		again, err := env.svc.EnsureDevice(ctx)
		if err != nil {
			t.Fatalf("second EnsureDevice() error = %v", err)
		}
		if again.ID != first.ID || again.Passkey != first.Passkey {
			t.Errorf("second EnsureDevice() = %+v, want %+v", again, first)
		}
		if len(env.registry.Registered) != 1 {
			t.Errorf("registered %d times, want 1", len(env.registry.Registered))
		}
	})

	t.Run("replaces an identity the server no longer knows", func(t *testing.T) {
		env := newTestEnv(t)

		stale, err := env.svc.EnsureDevice(ctx)
		if err != nil {
			t.Fatalf("EnsureDevice() error = %v", err)
		}
		env.registry.Revoke(stale.ID)

		fresh, err := env.svc.EnsureDevice(ctx)
		if err != nil {
			t.Fatalf("EnsureDevice() error = %v", err)
		}
		if fresh.ID == stale.ID || fresh.Passkey != "222222" {
			t.Errorf("EnsureDevice() = %+v, want a new identity", fresh)
		}

		devices, err := env.store.GetAllDevices(ctx)
		if err != nil {
			t.Fatalf("GetAllDevices() error = %v", err)
		}
		if len(devices) != 1 || devices[0].ID != fresh.ID {
			t.Errorf("stored devices = %+v, want only %s", devices, fresh.ID)
		}
	})

	t.Run("validation errors are not treated as rejection", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := env.svc.EnsureDevice(ctx); err != nil {
			t.Fatalf("EnsureDevice() error = %v", err)
		}
		env.registry.ValidateErr = errors.New("offline")

		if _, err := env.svc.EnsureDevice(ctx); err == nil {
			t.Fatal("EnsureDevice() expected error while registry is unreachable")
		}
		devices, _ := env.store.GetAllDevices(ctx)
		if len(devices) != 1 {
			t.Errorf("len(devices) = %d, want the identity kept", len(devices))
		}
	})
}

func TestLapseService_ResetDevice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id, err := env.svc.ResetDevice(ctx)
	if err != nil || id != "" {
		t.Fatalf("ResetDevice() = %q, %v; want empty, nil", id, err)
	}

	d, err := env.svc.EnsureDevice(ctx)
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	id, err = env.svc.ResetDevice(ctx)
	if err != nil {
		t.Fatalf("ResetDevice() error = %v", err)
	}
	if id != d.ID {
		t.Errorf("ResetDevice() = %q, want %q", id, d.ID)
	}

	next, err := env.svc.EnsureDevice(ctx)
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if next.ID == d.ID {
		t.Error("EnsureDevice() after reset reused the old identity")
	}
}

func TestLapseService_Decrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("uses this device's passkey by default", func(t *testing.T) {
		env := newTestEnv(t)
		d, err := env.svc.EnsureDevice(ctx)
		if err != nil {
			t.Fatalf("EnsureDevice() error = %v", err)
		}
		sealed, err := env.envelope.Encrypt(ctx, []byte("frames"), "draft-7", d.Passkey)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}

		got, err := env.svc.Decrypt(ctx, sealed.Ciphertext, "draft-7", "")
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if string(got) != "frames" {
			t.Errorf("Decrypt() = %q, want %q", got, "frames")
		}

		if _, err := env.svc.Decrypt(ctx, sealed.Ciphertext, "draft-7", "999999"); !errors.Is(err, lapse.ErrCryptoFailure) {
			t.Errorf("Decrypt() with wrong passkey error = %v, want ErrCryptoFailure", err)
		}
	})

	t.Run("explicit passkey needs no identity", func(t *testing.T) {
		env := newTestEnv(t)
		sealed, err := env.envelope.Encrypt(ctx, []byte("frames"), "draft-7", "424242")
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		got, err := env.svc.Decrypt(ctx, sealed.Ciphertext, "draft-7", "424242")
		if err != nil || string(got) != "frames" {
			t.Errorf("Decrypt() = %q, %v", got, err)
		}
	})

	t.Run("no identity and no passkey", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Decrypt(ctx, []byte("x"), "draft-7", "")
		if !errors.Is(err, lapse.ErrNotFound) {
			t.Errorf("Decrypt() error = %v, want ErrNotFound", err)
		}
	})
}

func TestLapseService_ExportImportDevice(t *testing.T) {
	ctx := context.Background()
	src := newTestEnv(t)
	dst := newTestEnv(t)

	var exported bytes.Buffer
	if err := src.svc.ExportDevice(ctx, "pw", &exported); !errors.Is(err, lapse.ErrNotFound) {
		t.Fatalf("ExportDevice() without identity error = %v, want ErrNotFound", err)
	}

	d, err := src.svc.EnsureDevice(ctx)
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if err := src.svc.ExportDevice(ctx, "pw", &exported); err != nil {
		t.Fatalf("ExportDevice() error = %v", err)
	}
	sealed := exported.Bytes()

	if _, err := dst.svc.ImportDevice(ctx, bytes.NewReader(sealed), "wrong"); !errors.Is(err, lapse.ErrCryptoFailure) {
		t.Errorf("ImportDevice() with wrong passphrase error = %v, want ErrCryptoFailure", err)
	}

	// dst already has its own identity, which the import replaces.
	if _, err := dst.registry.Register(ctx, "someone else"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := dst.svc.EnsureDevice(ctx); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	imported, err := dst.svc.ImportDevice(ctx, bytes.NewReader(sealed), "pw")
	if err != nil {
		t.Fatalf("ImportDevice() error = %v", err)
	}
	if imported.ID != d.ID || imported.Passkey != d.Passkey || !imported.ThisDevice {
		t.Errorf("ImportDevice() = %+v, want %+v", imported, d)
	}

	devices, _ := dst.store.GetAllDevices(ctx)
	if len(devices) != 1 || devices[0].ID != d.ID {
		t.Errorf("stored devices = %+v, want only the imported one", devices)
	}

	ct, err := src.envelope.Encrypt(ctx, []byte("frames"), "draft-1", d.Passkey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	got, err := dst.svc.Decrypt(ctx, ct.Ciphertext, "draft-1", "")
	if err != nil || string(got) != "frames" {
		t.Errorf("Decrypt() on importing device = %q, %v", got, err)
	}
}
