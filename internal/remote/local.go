package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lapse-go/internal/lapse"
)

// Local is an offline stand-in for the server. Devices are recorded as
// marker files and drafts as JSON documents under dir.
type Local struct {
	dir   string
	idGen lapse.IDGenerator
	clock lapse.Clock
}

var (
	_ lapse.DeviceRegistry = (*Local)(nil)
	_ lapse.DraftService   = (*Local)(nil)
)

// NewLocal creates a Local registry rooted at dir.
func NewLocal(dir string, idGen lapse.IDGenerator, clock lapse.Clock) *Local {
	return &Local{dir: dir, idGen: idGen, clock: clock}
}

// LocalDraft is the document written for each draft.
type LocalDraft struct {
	ID          string               `json:"id"`
	Request     lapse.DraftRequest   `json:"request"`
	Video       string               `json:"video"`
	Thumbnail   string               `json:"thumbnail"`
	CreatedAt   time.Time            `json:"createdAt"`
	CommittedAt *time.Time           `json:"committedAt,omitempty"`
	Metadata    *lapse.DraftMetadata `json:"metadata,omitempty"`
}

func (l *Local) devicePath(id string) string {
	return filepath.Join(l.dir, "devices", id)
}

func (l *Local) draftPath(id string) string {
	return filepath.Join(l.dir, id+".json")
}

func (l *Local) Register(ctx context.Context, name string) (string, error) {
	id := l.idGen.New()
	path := l.devicePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating devices directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(name+"\n"), 0600); err != nil {
		return "", fmt.Errorf("registering device: %w", err)
	}
	return id, nil
}

func (l *Local) Validate(ctx context.Context, id string) (bool, error) {
	if id == "" || filepath.Base(id) != id {
		return false, nil
	}
	_, err := os.Stat(l.devicePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("validating device: %w", err)
	}
	return true, nil
}

// Revoke forgets a device, so the next Validate rejects it.
func (l *Local) Revoke(id string) error {
	if err := os.Remove(l.devicePath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("revoking device: %w", err)
	}
	return nil
}

func (l *Local) CreateDraft(ctx context.Context, req lapse.DraftRequest) (*lapse.Draft, error) {
	id := l.idGen.New()
	draft := &lapse.Draft{
		ID:        id,
		Video:     lapse.UploadDestination{Key: "timelapses/" + id + "/video.lpsf.enc"},
		Thumbnail: lapse.UploadDestination{Key: "timelapses/" + id + "/thumbnail.jpg.enc"},
	}
	doc := &LocalDraft{
		ID:        id,
		Request:   req,
		Video:     draft.Video.Key,
		Thumbnail: draft.Thumbnail.Key,
		CreatedAt: l.clock.Now().UTC(),
	}
	if err := l.write(doc); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}
	return draft, nil
}

func (l *Local) CommitDraft(ctx context.Context, id string, meta lapse.DraftMetadata) error {
	doc, err := l.ReadDraft(id)
	if err != nil {
		return fmt.Errorf("committing draft %s: %w", id, err)
	}
	now := l.clock.Now().UTC()
	doc.CommittedAt = &now
	doc.Metadata = &meta
	if err := l.write(doc); err != nil {
		return fmt.Errorf("committing draft %s: %w", id, err)
	}
	return nil
}

// ReadDraft loads a draft document. A missing draft is lapse.ErrNotFound.
func (l *Local) ReadDraft(id string) (*LocalDraft, error) {
	data, err := os.ReadFile(l.draftPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("draft %s: %w", id, lapse.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading draft: %w", err)
	}
	var doc LocalDraft
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding draft: %w", err)
	}
	return &doc, nil
}

func (l *Local) write(doc *LocalDraft) error {
	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	tmp := l.draftPath(doc.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing draft: %w", err)
	}
	if err := os.Rename(tmp, l.draftPath(doc.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming draft: %w", err)
	}
	return nil
}
