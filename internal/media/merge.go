package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"lapse-go/internal/lapse"
)

// Merger stitches the chunks of a recording into one stream.
//
// Chunks are grouped by epoch. Each epoch's samples are rebased to start at
// the end of the previous epoch and retimed by captureTick/targetPeriod, so
// the idle time between capture runs disappears from the output.
type Merger struct {
	codec        Codec
	captureTick  time.Duration
	targetPeriod time.Duration
	logger       lapse.Logger
}

// NewMerger creates a Merger.
func NewMerger(codec Codec, captureTick, targetPeriod time.Duration, logger lapse.Logger) *Merger {
	return &Merger{
		codec:        codec,
		captureTick:  captureTick,
		targetPeriod: targetPeriod,
		logger:       logger,
	}
}

// TimeScale is the factor applied to every timestamp and duration.
func (m *Merger) TimeScale() float64 {
	return float64(m.captureTick) / float64(m.targetPeriod)
}

// epochRun holds the chunks of one epoch sorted by capture time.
type epochRun struct {
	epoch  lapse.SessionEpoch
	chunks []*lapse.Chunk
}

func (r *epochRun) start() time.Time { return r.chunks[0].CreatedAt }

// blob concatenates the chunk payloads of the epoch.
func (r *epochRun) blob() []byte {
	size := 0
	for _, c := range r.chunks {
		size += len(c.Data)
	}
	out := make([]byte, 0, size)
	for _, c := range r.chunks {
		out = append(out, c.Data...)
	}
	return out
}

// partition groups chunks by epoch. Chunks within an epoch are ordered by
// CreatedAt and epochs by their earliest chunk.
func partition(chunks []*lapse.Chunk) []*epochRun {
	byEpoch := make(map[lapse.SessionEpoch]*epochRun)
	var runs []*epochRun
	for _, c := range chunks {
		r, ok := byEpoch[c.Epoch]
		if !ok {
			r = &epochRun{epoch: c.Epoch}
			byEpoch[c.Epoch] = r
			runs = append(runs, r)
		}
		r.chunks = append(r.chunks, c)
	}

	for _, r := range runs {
		sort.SliceStable(r.chunks, func(i, j int) bool {
			return r.chunks[i].CreatedAt.Before(r.chunks[j].CreatedAt)
		})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].start().Before(runs[j].start())
	})
	return runs
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(math.Round(float64(d) * factor))
}

// Merge returns the assembled stream for chunks.
//
// A single epoch is returned as its raw concatenation without re-encoding.
// Merging no chunks is a precondition violation.
func (m *Merger) Merge(ctx context.Context, chunks []*lapse.Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("merging a recording without chunks: %w", lapse.ErrPreconditionViolation)
	}

	runs := partition(chunks)
	if len(runs) == 1 {
		m.logger.Debug("single epoch, skipping re-encode", "epoch", runs[0].epoch, "chunks", len(runs[0].chunks))
		return runs[0].blob(), nil
	}

	if m.captureTick <= 0 || m.targetPeriod <= 0 {
		return nil, fmt.Errorf("capture tick %s and target period %s must be positive: %w",
			m.captureTick, m.targetPeriod, lapse.ErrPreconditionViolation)
	}
	factor := m.TimeScale()

	var dst output
	defer func() {
		if dst.enc != nil {
			dst.enc.Close()
		}
	}()

	var offset time.Duration
	for _, r := range runs {
		extent, err := m.appendEpoch(ctx, r, factor, offset, &dst)
		if err != nil {
			return nil, fmt.Errorf("epoch %s: %w", r.epoch, err)
		}
		offset += extent
	}

	if dst.enc == nil {
		return nil, fmt.Errorf("no epoch produced a stream: %w", lapse.ErrDecodeFailure)
	}
	out, err := dst.enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("finishing stream: %w", err)
	}

	m.logger.Info("recording merged", "epochs", len(runs), "duration", offset, "size", len(out))
	return out, nil
}

// output is the merged stream under construction.
type output struct {
	enc   Encoder
	track Track
}

// sameFrames reports whether samples of b can be stored under a's track
// record. Frame periods may differ since every epoch is retimed.
func sameFrames(a, b Track) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Format == b.Format
}

// appendEpoch decodes one epoch and writes its retimed samples to dst,
// opening the encoder from the first track seen. Later epochs must carry
// the same frame size and payload format. It returns the retimed length of
// the epoch, measured to the end of its last valid sample rather than its
// last timestamp (see "Epoch extent in the merge" in DESIGN.md).
func (m *Merger) appendEpoch(ctx context.Context, r *epochRun, factor float64, offset time.Duration, dst *output) (time.Duration, error) {
	dec, err := m.codec.NewDecoder(bytes.NewReader(r.blob()))
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	track := dec.Track()
	if dst.enc == nil {
		out := track
		out.FramePeriod = m.targetPeriod
		e, err := m.codec.NewEncoder(out)
		if err != nil {
			return 0, err
		}
		dst.enc, dst.track = e, out
	} else if !sameFrames(dst.track, track) {
		return 0, fmt.Errorf("track %dx%d %s does not match stream %dx%d %s: %w",
			track.Width, track.Height, track.Format,
			dst.track.Width, dst.track.Height, dst.track.Format, lapse.ErrDecodeFailure)
	}

	var (
		zero    time.Duration
		prev    time.Duration
		end     time.Duration
		samples int
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		s, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}

		if s.Duration <= 0 {
			m.logger.Debug("dropping zero-duration sample", "epoch", r.epoch, "timestamp", s.Timestamp)
			continue
		}

		if samples == 0 {
			zero = s.Timestamp
			end = s.Timestamp
		} else if s.Timestamp < prev {
			m.logger.Warn("sample timestamps went backwards", "epoch", r.epoch, "previous", prev, "timestamp", s.Timestamp)
		}
		prev = s.Timestamp
		samples++

		out := &Sample{
			Timestamp: scale(s.Timestamp-zero, factor) + offset,
			Duration:  scale(s.Duration, factor),
			Keyframe:  s.Keyframe,
			Data:      s.Data,
		}
		if err := dst.enc.WriteSample(out); err != nil {
			return 0, fmt.Errorf("encoding sample: %w", err)
		}

		if e := s.Timestamp + s.Duration; e > end {
			end = e
		}
	}

	if samples == 0 {
		m.logger.Warn("epoch has no usable samples", "epoch", r.epoch)
		return 0, nil
	}
	return scale(end-zero, factor), nil
}
