package media_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lapse-go/internal/media"
)

var testTrack = media.Track{Width: 64, Height: 48, FramePeriod: time.Second, Format: media.FormatJPEG}

// fragment encodes a track record followed by the given samples.
func fragment(t *testing.T, track media.Track, samples ...*media.Sample) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, media.WriteTrack(&buf, track))
	for _, s := range samples {
		require.NoError(t, media.WriteSample(&buf, s))
	}
	return buf.Bytes()
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func sample(tsMs, durMs int, data string) *media.Sample {
	return &media.Sample{Timestamp: ms(tsMs), Duration: ms(durMs), Keyframe: true, Data: []byte(data)}
}

// solidJPEG returns a w×h JPEG filled with c.
func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// decodeAll reads every sample of a stream.
func decodeAll(t *testing.T, data []byte) (media.Track, []*media.Sample) {
	t.Helper()
	dec, err := media.LPSF{}.NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)
	defer dec.Close()

	var out []*media.Sample
	for {
		s, err := dec.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return dec.Track(), out
		}
		out = append(out, s)
	}
}
