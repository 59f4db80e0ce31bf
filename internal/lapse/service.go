package lapse

import (
	"context"
	"fmt"
)

// Deps holds the collaborators of a LapseService.
type Deps struct {
	Store       CaptureStore
	Merger      Merger
	Thumbnailer Thumbnailer
	Envelope    Envelope
	Registry    DeviceRegistry
	Drafts      DraftService
	Uploader    Uploader
	Sealer      DeviceSealer

	// Passkeys generates the passkey of a newly registered device.
	Passkeys func() (string, error)

	// DeviceName is sent to the registry when this device registers.
	DeviceName string

	Logger Logger
	Clock  Clock
	IDGen  IDGenerator
}

// LapseService is the orchestration layer that coordinates the capture store,
// the media pipeline, the envelope and the remote collaborators to perform
// the high-level operations needed by the CLI.
type LapseService struct {
	store       CaptureStore
	merger      Merger
	thumbnailer Thumbnailer
	envelope    Envelope
	registry    DeviceRegistry
	drafts      DraftService
	uploader    Uploader
	sealer      DeviceSealer
	passkeys    func() (string, error)
	deviceName  string
	logger      Logger
	clock       Clock
	idgen       IDGenerator
}

// NewLapseService creates a new LapseService with the provided dependencies.
func NewLapseService(d Deps) *LapseService {
	return &LapseService{
		store:       d.Store,
		merger:      d.Merger,
		thumbnailer: d.Thumbnailer,
		envelope:    d.Envelope,
		registry:    d.Registry,
		drafts:      d.Drafts,
		uploader:    d.Uploader,
		sealer:      d.Sealer,
		passkeys:    d.Passkeys,
		deviceName:  d.DeviceName,
		logger:      d.Logger,
		clock:       d.Clock,
		idgen:       d.IDGen,
	}
}

func (s *LapseService) newEpoch() SessionEpoch {
	return SessionEpoch(s.idgen.New())
}

// Start creates a new active recording and opens its first epoch.
// It fails with ErrActiveSessionExists while another recording is active.
func (s *LapseService) Start(ctx context.Context, name, description string) (*Timelapse, SessionEpoch, error) {
	active, err := s.store.GetActiveSession(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("checking for active recording: %w", err)
	}
	if active != nil {
		return nil, "", fmt.Errorf("timelapse %d: %w", active.ID, ErrActiveSessionExists)
	}

	t := &Timelapse{
		Name:        name,
		Description: description,
		StartedAt:   s.clock.Now(),
		IsActive:    true,
	}
	id, err := s.store.SaveSession(ctx, t)
	if err != nil {
		return nil, "", fmt.Errorf("saving timelapse: %w", err)
	}
	t.ID = id

	epoch := s.newEpoch()
	s.logger.Info("recording started", "timelapse", id, "epoch", epoch)
	return t, epoch, nil
}

// Resume returns the active recording together with a fresh epoch.
// It returns a nil timelapse when there is nothing to resume.
func (s *LapseService) Resume(ctx context.Context) (*Timelapse, SessionEpoch, error) {
	t, err := s.store.GetActiveSession(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("loading active recording: %w", err)
	}
	if t == nil {
		return nil, "", nil
	}

	epoch := s.newEpoch()
	s.logger.Info("recording resumed", "timelapse", t.ID, "epoch", epoch, "chunks", len(t.Chunks))
	return t, epoch, nil
}

// RecordFrame stores a snapshot for the current instant.
func (s *LapseService) RecordFrame(ctx context.Context, epoch SessionEpoch) (*Snapshot, error) {
	snap := &Snapshot{CreatedAt: s.clock.Now(), Epoch: epoch}
	id, err := s.store.SaveFrameMarker(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	snap.ID = id
	return snap, nil
}

// AppendChunk stores an encoded media slice for a recording.
func (s *LapseService) AppendChunk(ctx context.Context, sessionID int64, data []byte, epoch SessionEpoch) error {
	if err := s.store.AppendChunk(ctx, sessionID, data, epoch); err != nil {
		return fmt.Errorf("appending chunk to timelapse %d: %w", sessionID, err)
	}
	return nil
}

// Discard abandons a recording and deletes it with its snapshots.
func (s *LapseService) Discard(ctx context.Context, sessionID int64) error {
	if err := s.removeLocal(ctx, sessionID); err != nil {
		return fmt.Errorf("discarding timelapse %d: %w", sessionID, err)
	}
	s.logger.Info("recording discarded", "timelapse", sessionID)
	return nil
}

func (s *LapseService) removeLocal(ctx context.Context, sessionID int64) error {
	if err := s.store.MarkComplete(ctx, sessionID); err != nil {
		return fmt.Errorf("marking timelapse complete: %w", err)
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting timelapse: %w", err)
	}
	if err := s.store.DeleteAllFrameMarkers(ctx); err != nil {
		return fmt.Errorf("deleting snapshots: %w", err)
	}
	return s.store.Sync(ctx)
}
