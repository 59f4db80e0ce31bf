package lapse

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// FinishResult describes an uploaded recording.
type FinishResult struct {
	DraftID       string
	VideoSize     int64
	ThumbnailSize int64
	FrameCount    int
	Epochs        int
}

// ThumbnailRecordingID is the envelope identifier used for a recording's thumbnail.
// The video and the thumbnail never share an identifier, so a derived key and
// IV pair only ever covers one plaintext.
func ThumbnailRecordingID(recordingID string) string {
	return recordingID + "/thumbnail"
}

// Finish assembles, encrypts and uploads a recording, then removes it locally.
// Any failure is reported as a *StageError; the local recording is left
// untouched so the whole operation can be retried.
func (s *LapseService) Finish(ctx context.Context, sessionID int64) (*FinishResult, error) {
	fail := func(stage Stage, err error) error {
		s.logger.Error("finish failed", "timelapse", sessionID, "stage", stage, "error", err)
		return &StageError{SessionID: sessionID, Stage: stage, Err: err}
	}

	if err := s.store.Sync(ctx); err != nil {
		return nil, fail(StageLoad, err)
	}
	t, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fail(StageLoad, err)
	}
	if t == nil {
		return nil, fail(StageLoad, fmt.Errorf("timelapse %d: %w", sessionID, ErrNotFound))
	}
	if len(t.Chunks) == 0 {
		return nil, fail(StageLoad, fmt.Errorf("timelapse %d has no chunks: %w", sessionID, ErrPreconditionViolation))
	}
	markers, err := s.store.GetAllFrameMarkers(ctx)
	if err != nil {
		return nil, fail(StageLoad, err)
	}
	frames := len(IndexFrames(markers))
	epochs := len(t.Epochs())

	device, err := s.EnsureDevice(ctx)
	if err != nil {
		return nil, fail(StageDevice, err)
	}

	s.logger.Info("merging recording", "timelapse", sessionID, "chunks", len(t.Chunks), "epochs", epochs)
	video, err := s.merger.Merge(ctx, t.Chunks)
	if err != nil {
		return nil, fail(StageMerge, err)
	}

	thumb, err := s.thumbnailer.Extract(ctx, video)
	if err != nil {
		return nil, fail(StageThumbnail, err)
	}

	draft, err := s.drafts.CreateDraft(ctx, DraftRequest{
		Name:        t.Name,
		Description: t.Description,
		DeviceID:    device.ID,
		StartedAt:   t.StartedAt,
		FrameCount:  frames,
	})
	if err != nil {
		return nil, fail(StageDraft, err)
	}

	var sealedVideo, sealedThumb *Sealed
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sealedVideo, err = s.envelope.Encrypt(gctx, video, draft.ID, device.Passkey)
		return err
	})
	g.Go(func() error {
		var err error
		sealedThumb, err = s.envelope.Encrypt(gctx, thumb, ThumbnailRecordingID(draft.ID), device.Passkey)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fail(StageEncrypt, err)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.put(gctx, draft.Video, sealedVideo.Ciphertext)
	})
	g.Go(func() error {
		return s.put(gctx, draft.Thumbnail, sealedThumb.Ciphertext)
	})
	if err := g.Wait(); err != nil {
		return nil, fail(StageUpload, err)
	}

	meta := DraftMetadata{
		VideoSize:     int64(len(sealedVideo.Ciphertext)),
		ThumbnailSize: int64(len(sealedThumb.Ciphertext)),
		FrameCount:    frames,
		Epochs:        epochs,
	}
	if err := s.drafts.CommitDraft(ctx, draft.ID, meta); err != nil {
		return nil, fail(StageCommit, err)
	}

	if err := s.removeLocal(ctx, sessionID); err != nil {
		return nil, fail(StageCleanup, err)
	}

	s.logger.Info("recording uploaded", "timelapse", sessionID, "draft", draft.ID,
		"video_size", meta.VideoSize, "thumbnail_size", meta.ThumbnailSize)
	return &FinishResult{
		DraftID:       draft.ID,
		VideoSize:     meta.VideoSize,
		ThumbnailSize: meta.ThumbnailSize,
		FrameCount:    frames,
		Epochs:        epochs,
	}, nil
}

func (s *LapseService) put(ctx context.Context, dest UploadDestination, data []byte) error {
	if err := s.uploader.Put(ctx, dest, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("uploading %s: %w", dest.Key, err)
	}
	return nil
}
