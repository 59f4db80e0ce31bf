package encryption

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"lapse-go/internal/lapse"
)

func newTestAgeSealer() *AgeSealer {
	return NewAgeSealerWithWorkFactor(10)
}

func TestAgeSealer_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer()
	d := &lapse.Device{ID: "dev-1", Passkey: "123456", ThisDevice: true}

	var buf bytes.Buffer
	if err := s.Seal(d, "correct horse", &buf); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Errorf("sealed output is not armored: %q", buf.String())
	}
	if strings.Contains(buf.String(), "123456") {
		t.Error("sealed output contains passkey")
	}

	got, err := s.Open(&buf, "correct horse")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got.ID != "dev-1" || got.Passkey != "123456" {
		t.Errorf("Open() = %+v, want dev-1/123456", got)
	}
}

func TestAgeSealer_WrongPassphrase(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer()

	var buf bytes.Buffer
	if err := s.Seal(&lapse.Device{ID: "dev-1", Passkey: "123456"}, "correct horse", &buf); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	_, err := s.Open(&buf, "battery staple")
	if !errors.Is(err, lapse.ErrCryptoFailure) {
		t.Errorf("Open() error = %v, want ErrCryptoFailure", err)
	}
}
