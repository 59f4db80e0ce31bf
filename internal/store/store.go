// Package store implements the capture store: a lapse.Database whose every
// call is admitted through a serialization queue.
package store

import (
	"context"
	"errors"
	"fmt"

	"lapse-go/internal/lapse"
	"lapse-go/internal/queue"
)

// backlog bounds how many operations may wait for their turn before
// admission itself blocks.
const backlog = 64

// CaptureStore implements lapse.CaptureStore.
type CaptureStore struct {
	db    lapse.Database
	q     *queue.Queue
	clock lapse.Clock
}

// New wraps db. The store owns db and closes it on Close.
func New(db lapse.Database, clock lapse.Clock) *CaptureStore {
	return &CaptureStore{
		db:    db,
		q:     queue.New(backlog),
		clock: clock,
	}
}

// do admits fn and maps a closed queue to ErrStorageUnavailable.
func (s *CaptureStore) do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := s.q.Do(ctx, fn)
	if errors.Is(err, queue.ErrClosed) {
		return lapse.NewStorageError(op, err)
	}
	return err
}

func (s *CaptureStore) SaveSession(ctx context.Context, t *lapse.Timelapse) (int64, error) {
	var id int64
	err := s.do(ctx, "saving session", func(ctx context.Context) error {
		var err error
		id, err = s.db.SaveTimelapse(ctx, t)
		return err
	})
	return id, err
}

func (s *CaptureStore) GetSession(ctx context.Context, id int64) (*lapse.Timelapse, error) {
	var t *lapse.Timelapse
	err := s.do(ctx, "getting session", func(ctx context.Context) error {
		var err error
		t, err = s.db.FindTimelapse(ctx, id)
		return err
	})
	return t, err
}

func (s *CaptureStore) GetActiveSession(ctx context.Context) (*lapse.Timelapse, error) {
	var t *lapse.Timelapse
	err := s.do(ctx, "getting active session", func(ctx context.Context) error {
		var err error
		t, err = s.db.FindActiveTimelapse(ctx)
		return err
	})
	return t, err
}

// AppendChunk stamps the chunk inside its turn, so timestamps follow
// admission order.
func (s *CaptureStore) AppendChunk(ctx context.Context, sessionID int64, data []byte, epoch lapse.SessionEpoch) error {
	return s.do(ctx, "appending chunk", func(ctx context.Context) error {
		return s.db.InsertChunk(ctx, &lapse.Chunk{
			TimelapseID: sessionID,
			Data:        data,
			CreatedAt:   s.clock.Now(),
			Epoch:       epoch,
		})
	})
}

func (s *CaptureStore) MarkComplete(ctx context.Context, sessionID int64) error {
	return s.do(ctx, "marking session complete", func(ctx context.Context) error {
		return s.db.SetTimelapseActive(ctx, sessionID, false)
	})
}

func (s *CaptureStore) DeleteSession(ctx context.Context, id int64) error {
	return s.do(ctx, "deleting session", func(ctx context.Context) error {
		return s.db.DeleteTimelapse(ctx, id)
	})
}

func (s *CaptureStore) SaveFrameMarker(ctx context.Context, snap *lapse.Snapshot) (int64, error) {
	var id int64
	err := s.do(ctx, "saving frame marker", func(ctx context.Context) error {
		var err error
		id, err = s.db.InsertSnapshot(ctx, snap)
		return err
	})
	return id, err
}

func (s *CaptureStore) GetAllFrameMarkers(ctx context.Context) ([]*lapse.Snapshot, error) {
	var snaps []*lapse.Snapshot
	err := s.do(ctx, "getting frame markers", func(ctx context.Context) error {
		var err error
		snaps, err = s.db.FindAllSnapshots(ctx)
		return err
	})
	return snaps, err
}

func (s *CaptureStore) DeleteAllFrameMarkers(ctx context.Context) error {
	return s.do(ctx, "deleting frame markers", func(ctx context.Context) error {
		return s.db.DeleteAllSnapshots(ctx)
	})
}

func (s *CaptureStore) SaveDevice(ctx context.Context, d *lapse.Device) error {
	return s.do(ctx, "saving device", func(ctx context.Context) error {
		return s.db.SaveDevice(ctx, d)
	})
}

func (s *CaptureStore) GetDevice(ctx context.Context, id string) (*lapse.Device, error) {
	var d *lapse.Device
	err := s.do(ctx, "getting device", func(ctx context.Context) error {
		var err error
		d, err = s.db.FindDevice(ctx, id)
		return err
	})
	return d, err
}

func (s *CaptureStore) GetAllDevices(ctx context.Context) ([]*lapse.Device, error) {
	var devices []*lapse.Device
	err := s.do(ctx, "getting devices", func(ctx context.Context) error {
		var err error
		devices, err = s.db.FindAllDevices(ctx)
		return err
	})
	return devices, err
}

func (s *CaptureStore) DeleteDevice(ctx context.Context, id string) error {
	return s.do(ctx, "deleting device", func(ctx context.Context) error {
		return s.db.DeleteDevice(ctx, id)
	})
}

func (s *CaptureStore) Sync(ctx context.Context) error {
	if err := s.q.Synchronize(ctx); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return lapse.NewStorageError("syncing", err)
		}
		return err
	}
	return nil
}

// Close waits for admitted operations, then closes the database.
func (s *CaptureStore) Close() error {
	s.q.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Compile-time check that CaptureStore implements lapse.CaptureStore.
var _ lapse.CaptureStore = (*CaptureStore)(nil)
