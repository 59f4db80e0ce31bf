package encryption

import (
	"testing"

	"lapse-go/internal/config"
)

func TestNewEnvelopeFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{name: "default", typ: ""},
		{name: "envelope", typ: "envelope"},
		{name: "test", typ: "test"},
		{name: "unknown", typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env, err := NewEnvelopeFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEnvelopeFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && env == nil {
				t.Error("NewEnvelopeFromConfig() returned nil envelope")
			}
		})
	}
}
