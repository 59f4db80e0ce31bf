package lapse

import (
	"context"
	"fmt"
)

// Status describes the active recording.
type Status struct {
	Timelapse *Timelapse
	Chunks    int
	Epochs    int
	Frames    int
}

// Status returns a summary of the active recording, or nil when none is active.
func (s *LapseService) Status(ctx context.Context) (*Status, error) {
	t, err := s.store.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active recording: %w", err)
	}
	if t == nil {
		return nil, nil
	}

	markers, err := s.store.GetAllFrameMarkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	return &Status{
		Timelapse: t,
		Chunks:    len(t.Chunks),
		Epochs:    len(t.Epochs()),
		Frames:    len(IndexFrames(markers)),
	}, nil
}
