package lapse

import "context"

// Database is the persistence backend behind the capture store.
// Implementations are not required to serialize compound operations;
// CaptureStore does that. Lookups return (nil, nil) when a record is absent.
type Database interface {
	// Timelapse operations

	// SaveTimelapse inserts t when t.ID is zero, otherwise upserts it by ID,
	// replacing its chunk list. Returns the ID.
	SaveTimelapse(ctx context.Context, t *Timelapse) (int64, error)

	// FindTimelapse returns a timelapse with its chunks ordered by insertion.
	FindTimelapse(ctx context.Context, id int64) (*Timelapse, error)

	// FindActiveTimelapse returns the timelapse with the active flag set, if any.
	FindActiveTimelapse(ctx context.Context) (*Timelapse, error)

	// InsertChunk appends a chunk to an existing timelapse.
	InsertChunk(ctx context.Context, c *Chunk) error

	// SetTimelapseActive updates the active flag without touching chunks.
	SetTimelapseActive(ctx context.Context, id int64, active bool) error

	// DeleteTimelapse removes a timelapse and its chunks.
	DeleteTimelapse(ctx context.Context, id int64) error

	// Snapshot operations

	InsertSnapshot(ctx context.Context, s *Snapshot) (int64, error)
	FindAllSnapshots(ctx context.Context) ([]*Snapshot, error)
	DeleteAllSnapshots(ctx context.Context) error

	// Device operations

	SaveDevice(ctx context.Context, d *Device) error
	FindDevice(ctx context.Context, id string) (*Device, error)
	FindAllDevices(ctx context.Context) ([]*Device, error)
	DeleteDevice(ctx context.Context, id string) error

	// Close closes the database connection.
	Close() error
}

// CaptureStore is the durable local store for recordings, snapshots and
// device identities. Every call is admitted in FIFO order and runs alone, so
// read-modify-write operations such as AppendChunk never interleave.
type CaptureStore interface {
	// SaveSession upserts t by ID, assigning one when absent, and returns it.
	SaveSession(ctx context.Context, t *Timelapse) (int64, error)

	// GetSession returns the timelapse or nil when it does not exist.
	GetSession(ctx context.Context, id int64) (*Timelapse, error)

	// GetActiveSession returns the recording to resume, or nil when there is none.
	GetActiveSession(ctx context.Context) (*Timelapse, error)

	// AppendChunk stores data as a new chunk stamped with the current time.
	AppendChunk(ctx context.Context, sessionID int64, data []byte, epoch SessionEpoch) error

	// MarkComplete clears the active flag. It is idempotent.
	MarkComplete(ctx context.Context, sessionID int64) error

	DeleteSession(ctx context.Context, id int64) error

	SaveFrameMarker(ctx context.Context, s *Snapshot) (int64, error)
	GetAllFrameMarkers(ctx context.Context) ([]*Snapshot, error)
	DeleteAllFrameMarkers(ctx context.Context) error

	SaveDevice(ctx context.Context, d *Device) error
	GetDevice(ctx context.Context, id string) (*Device, error)
	GetAllDevices(ctx context.Context) ([]*Device, error)
	DeleteDevice(ctx context.Context, id string) error

	// Sync blocks until every operation admitted before the call has finished.
	Sync(ctx context.Context) error

	Close() error
}
