package testutil

import (
	"context"
	"fmt"
	"sync"

	"lapse-go/internal/lapse"
)

// FakeRegistry is an in-memory lapse.DeviceRegistry.
type FakeRegistry struct {
	mu          sync.Mutex
	known       map[string]bool
	counter     int
	Registered  []string // device names, in registration order
	ValidateErr error
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{known: make(map[string]bool)}
}

func (r *FakeRegistry) Register(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	id := fmt.Sprintf("device-%d", r.counter)
	r.known[id] = true
	r.Registered = append(r.Registered, name)
	return id, nil
}

func (r *FakeRegistry) Validate(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ValidateErr != nil {
		return false, r.ValidateErr
	}
	return r.known[id], nil
}

// Revoke makes the registry forget a device.
func (r *FakeRegistry) Revoke(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, id)
}

// Add marks a device as known without registering it.
func (r *FakeRegistry) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[id] = true
}

// FakeDrafts is an in-memory lapse.DraftService. Upload destinations are
// keyed so they work with upload.MemoryUploader.
type FakeDrafts struct {
	mu        sync.Mutex
	counter   int
	Requests  []lapse.DraftRequest
	Committed map[string]lapse.DraftMetadata
	CreateErr error
	CommitErr error
}

func NewFakeDrafts() *FakeDrafts {
	return &FakeDrafts{Committed: make(map[string]lapse.DraftMetadata)}
}

// VideoKey and ThumbnailKey return the upload keys of a draft.
func VideoKey(draftID string) string     { return "drafts/" + draftID + "/video" }
func ThumbnailKey(draftID string) string { return "drafts/" + draftID + "/thumbnail" }

func (d *FakeDrafts) CreateDraft(ctx context.Context, req lapse.DraftRequest) (*lapse.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateErr != nil {
		return nil, d.CreateErr
	}
	d.counter++
	id := fmt.Sprintf("draft-%d", d.counter)
	d.Requests = append(d.Requests, req)
	return &lapse.Draft{
		ID:        id,
		Video:     lapse.UploadDestination{Key: VideoKey(id)},
		Thumbnail: lapse.UploadDestination{Key: ThumbnailKey(id)},
	}, nil
}

func (d *FakeDrafts) CommitDraft(ctx context.Context, id string, meta lapse.DraftMetadata) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CommitErr != nil {
		return d.CommitErr
	}
	d.Committed[id] = meta
	return nil
}
