package upload

import (
	"context"
	"fmt"
	"io"
	"sync"

	"lapse-go/internal/lapse"
)

// MemoryUploader keeps uploads in memory, keyed by dest.Key or, when the
// key is empty, dest.URL. Safe for concurrent use.
type MemoryUploader struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ lapse.Uploader = (*MemoryUploader)(nil)

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{objects: make(map[string][]byte)}
}

func memoryKey(dest lapse.UploadDestination) string {
	if dest.Key != "" {
		return dest.Key
	}
	return dest.URL
}

func (m *MemoryUploader) Put(ctx context.Context, dest lapse.UploadDestination, r io.Reader, size int64) error {
	key := memoryKey(dest)
	if key == "" {
		return fmt.Errorf("upload destination has neither key nor url")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// Get returns a stored upload, or nil if none exists.
func (m *MemoryUploader) Get(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Len returns the number of stored uploads.
func (m *MemoryUploader) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
