package lapse

import (
	"context"
	"io"
	"time"
)

// Merger assembles the chunks of a recording into one continuous stream.
type Merger interface {
	Merge(ctx context.Context, chunks []*Chunk) ([]byte, error)
}

// Thumbnailer produces a compressed still image from a media stream.
type Thumbnailer interface {
	Extract(ctx context.Context, media []byte) ([]byte, error)
}

// Sealed is the output of an envelope encryption. Key, IV and the salts are
// hex encoded for callers that need to transport them explicitly.
type Sealed struct {
	Ciphertext []byte
	Key        string
	IV         string
	KeySalt    string
	IVSalt     string
}

// Envelope encrypts recordings so that only holders of the device passkey
// can read them. Derivation is deterministic per (recordingID, passkey).
type Envelope interface {
	Encrypt(ctx context.Context, plaintext []byte, recordingID, passkey string) (*Sealed, error)
	Decrypt(ctx context.Context, ciphertext []byte, recordingID, passkey string) ([]byte, error)
}

// DeviceRegistry is the server-side record of known devices.
type DeviceRegistry interface {
	// Register creates a device record and returns its server-assigned ID.
	Register(ctx context.Context, name string) (string, error)

	// Validate reports whether the server still recognizes the device.
	Validate(ctx context.Context, id string) (bool, error)
}

// UploadDestination addresses one upload slot handed out by the server.
// HTTP uploads use URL and Token; object-store uploads use Key.
type UploadDestination struct {
	URL   string `json:"url"`
	Token string `json:"token"`
	Key   string `json:"key"`
}

// DraftRequest describes a recording about to be uploaded.
type DraftRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DeviceID    string    `json:"deviceId"`
	StartedAt   time.Time `json:"startedAt"`
	FrameCount  int       `json:"frameCount"`
}

// Draft is the server's reply to a draft creation.
type Draft struct {
	ID        string            `json:"id"`
	Video     UploadDestination `json:"video"`
	Thumbnail UploadDestination `json:"thumbnail"`
}

// DraftMetadata is persisted once both uploads have completed.
type DraftMetadata struct {
	VideoSize     int64 `json:"videoSize"`
	ThumbnailSize int64 `json:"thumbnailSize"`
	FrameCount    int   `json:"frameCount"`
	Epochs        int   `json:"epochs"`
}

// DraftService creates upload drafts and records their final metadata.
type DraftService interface {
	CreateDraft(ctx context.Context, req DraftRequest) (*Draft, error)
	CommitDraft(ctx context.Context, id string, meta DraftMetadata) error
}

// Uploader sends a buffer to an upload destination.
// size is the number of bytes that will be read from r.
type Uploader interface {
	Put(ctx context.Context, dest UploadDestination, r io.Reader, size int64) error
}

// Fragment is an encoded media slice waiting to be ingested.
type Fragment struct {
	Name string
	Data []byte
}

// FragmentSource yields fragments produced by an external capture pipeline.
type FragmentSource interface {
	// Pending returns the fragments ready for ingestion, oldest first.
	Pending() ([]*Fragment, error)

	// Ack releases a fragment once it has been stored.
	Ack(f *Fragment) error
}

// DeviceSealer protects an exported device identity with a passphrase.
type DeviceSealer interface {
	Seal(d *Device, passphrase string, w io.Writer) error
	Open(r io.Reader, passphrase string) (*Device, error)
}
