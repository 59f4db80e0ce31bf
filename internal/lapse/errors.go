package lapse

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the capture core. Callers match them with errors.Is.
var (
	// ErrStorageUnavailable means the local store could not be opened or written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound means a record required by a compound operation does not exist.
	// Plain lookups return (nil, nil) instead.
	ErrNotFound = errors.New("not found")

	// ErrDecodeFailure means a media fragment could not be decoded or has no video track.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrUnsupportedCodec means no encoder is available for the required output.
	ErrUnsupportedCodec = errors.New("no supported encoder")

	// ErrCryptoFailure means key derivation, encryption or decryption failed.
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrPreconditionViolation marks a caller bug, such as merging an empty session.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrActiveSessionExists is returned when a second recording would become active.
	ErrActiveSessionExists = errors.New("another recording is already active")

	// ErrThisDeviceExists is returned when a second identity would claim to be this device.
	ErrThisDeviceExists = errors.New("another device is already marked as this device")
)

// StorageError wraps a failure of the underlying store.
// It matches ErrStorageUnavailable with errors.Is and unwraps to the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// NewStorageError wraps err as a StorageError for the named operation.
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Stage names a step of the finalize pipeline.
type Stage string

const (
	StageLoad      Stage = "load"
	StageDevice    Stage = "device"
	StageMerge     Stage = "merge"
	StageThumbnail Stage = "thumbnail"
	StageDraft     Stage = "draft"
	StageEncrypt   Stage = "encrypt"
	StageUpload    Stage = "upload"
	StageCommit    Stage = "commit"
	StageCleanup   Stage = "cleanup"
)

// StageError reports which session and which finalize stage failed.
// The whole finalize operation can be retried from scratch.
type StageError struct {
	SessionID int64
	Stage     Stage
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("finishing timelapse %d: %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
