package lapse

import (
	"context"
	"fmt"
	"time"
)

// CaptureSummary counts what one capture run stored.
type CaptureSummary struct {
	TimelapseID int64
	Epoch       SessionEpoch
	Frames      int
	Chunks      int
}

// Capture runs one uninterrupted capture epoch for the active recording.
// It records a snapshot every tick and ingests fragments from src until ctx
// is done, then drains src one last time and waits for the store to settle.
func (s *LapseService) Capture(ctx context.Context, src FragmentSource, tick time.Duration) (*CaptureSummary, error) {
	t, epoch, err := s.Resume(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("no active recording: %w", ErrNotFound)
	}

	summary := &CaptureSummary{TimelapseID: t.ID, Epoch: epoch}
	if _, err := s.RecordFrame(ctx, epoch); err != nil {
		return summary, err
	}
	summary.Frames++

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is finished; the final drain must still reach the store.
			drainCtx := context.WithoutCancel(ctx)
			n, err := s.ingest(drainCtx, src, t.ID, epoch)
			summary.Chunks += n
			if err != nil {
				return summary, err
			}
			if err := s.store.Sync(drainCtx); err != nil {
				return summary, fmt.Errorf("syncing store: %w", err)
			}
			s.logger.Info("capture stopped", "timelapse", t.ID, "epoch", epoch,
				"frames", summary.Frames, "chunks", summary.Chunks)
			return summary, nil

		case <-ticker.C:
			if _, err := s.RecordFrame(ctx, epoch); err != nil {
				if ctx.Err() != nil {
					continue
				}
				return summary, err
			}
			summary.Frames++

			n, err := s.ingest(ctx, src, t.ID, epoch)
			summary.Chunks += n
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return summary, err
			}
		}
	}
}

// ingest stores every pending fragment and acknowledges it afterwards.
func (s *LapseService) ingest(ctx context.Context, src FragmentSource, sessionID int64, epoch SessionEpoch) (int, error) {
	pending, err := src.Pending()
	if err != nil {
		return 0, fmt.Errorf("listing pending fragments: %w", err)
	}

	count := 0
	for _, f := range pending {
		if err := s.AppendChunk(ctx, sessionID, f.Data, epoch); err != nil {
			return count, err
		}
		if err := src.Ack(f); err != nil {
			return count, fmt.Errorf("acknowledging fragment %s: %w", f.Name, err)
		}
		count++
		s.logger.Debug("fragment ingested", "timelapse", sessionID, "fragment", f.Name, "size", len(f.Data))
	}
	return count, nil
}
