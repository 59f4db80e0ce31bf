package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG frame payloads
	"io"
	"math"
	"time"

	"golang.org/x/image/draw"

	"lapse-go/internal/lapse"
)

// Thumbnailer renders a preview still from a stream.
type Thumbnailer struct {
	codec        Codec
	maxDimension int
	pixelDensity float64
	quality      int
	logger       lapse.Logger
}

// NewThumbnailer creates a Thumbnailer whose output fits in a square of
// maxDimension*pixelDensity pixels.
func NewThumbnailer(codec Codec, maxDimension int, pixelDensity float64, logger lapse.Logger) *Thumbnailer {
	if pixelDensity <= 0 {
		pixelDensity = 1
	}
	return &Thumbnailer{
		codec:        codec,
		maxDimension: maxDimension,
		pixelDensity: pixelDensity,
		quality:      85,
		logger:       logger,
	}
}

// Extract returns a JPEG of the frame at the midpoint between the stream's
// first timestamp and its total duration. If that frame cannot be found or
// decoded, the first frame is used instead.
func (t *Thumbnailer) Extract(ctx context.Context, data []byte) ([]byte, error) {
	samples, err := t.readSamples(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("stream has no frames: %w", lapse.ErrDecodeFailure)
	}

	first := samples[0].Timestamp
	last := samples[len(samples)-1]
	total := last.Timestamp + last.Duration
	target := first + (total-first)/2

	var img image.Image
	if s := frameAt(samples, target); s != nil {
		img, err = decodeFrame(s)
		if err != nil {
			t.logger.Warn("midpoint frame unreadable, using first frame", "timestamp", s.Timestamp, "error", err)
		}
	} else {
		t.logger.Debug("no frame at midpoint, using first frame", "target", target)
	}
	if img == nil {
		if img, err = decodeFrame(samples[0]); err != nil {
			return nil, fmt.Errorf("decoding first frame: %v: %w", err, lapse.ErrDecodeFailure)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, t.fit(img), &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Thumbnailer) readSamples(ctx context.Context, data []byte) ([]*Sample, error) {
	dec, err := t.codec.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var samples []*Sample
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
}

// frameAt returns the sample displayed at ts, or nil if ts falls in a gap.
func frameAt(samples []*Sample, ts time.Duration) *Sample {
	for _, s := range samples {
		if s.Timestamp <= ts && ts < s.Timestamp+s.Duration {
			return s
		}
	}
	return nil
}

func decodeFrame(s *Sample) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(s.Data))
	return img, err
}

// fit scales img down to the thumbnail bound, preserving its aspect ratio.
// Images already inside the bound are returned unchanged.
func (t *Thumbnailer) fit(img image.Image) image.Image {
	bound := int(math.Round(float64(t.maxDimension) * t.pixelDensity))
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if bound <= 0 || (w <= bound && h <= bound) {
		return img
	}

	factor := float64(bound) / float64(max(w, h))
	nw := max(1, int(math.Round(float64(w)*factor)))
	nh := max(1, int(math.Round(float64(h)*factor)))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
