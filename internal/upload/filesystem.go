package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lapse-go/internal/lapse"
)

// FileSystemUploader writes uploads below a root directory, keyed by
// dest.Key. Useful for offline setups together with remote.Local.
type FileSystemUploader struct {
	root string
}

var _ lapse.Uploader = (*FileSystemUploader)(nil)

// NewFileSystemUploader creates the root directory if needed.
func NewFileSystemUploader(root string) (*FileSystemUploader, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}
	return &FileSystemUploader{root: root}, nil
}

// Path returns where an upload with the given key is stored.
func (u *FileSystemUploader) Path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid upload key %q", key)
	}
	return filepath.Join(u.root, rel), nil
}

// Put stores the upload atomically. Re-uploading a key replaces it.
func (u *FileSystemUploader) Put(ctx context.Context, dest lapse.UploadDestination, r io.Reader, size int64) error {
	destPath, err := u.Path(dest.Key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	return writeFile(destPath, r, size)
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
