package media_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapse-go/internal/lapse"
	"lapse-go/internal/media"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

func frame(tsMs, durMs int, data []byte) *media.Sample {
	return &media.Sample{Timestamp: ms(tsMs), Duration: ms(durMs), Keyframe: true, Data: data}
}

// dominant decodes a JPEG and reports its size and center pixel.
func dominant(t *testing.T, data []byte) (image.Rectangle, color.RGBA) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	r, g, bl, a := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	return b, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)}
}

func newThumbnailer(maxDim int, density float64) *media.Thumbnailer {
	return media.NewThumbnailer(media.LPSF{}, maxDim, density, lapse.NewNopLogger())
}

func TestThumbnailer_PicksMidpointFrame(t *testing.T) {
	stream := fragment(t, testTrack,
		frame(0, 1000, solidJPEG(t, 64, 48, red)),
		frame(1000, 1000, solidJPEG(t, 64, 48, green)),
		frame(2000, 1000, solidJPEG(t, 64, 48, blue)),
	)

	out, err := newThumbnailer(320, 1).Extract(context.Background(), stream)
	require.NoError(t, err)

	bounds, c := dominant(t, out)
	assert.Equal(t, 64, bounds.Dx())
	assert.Greater(t, c.G, uint8(200))
	assert.Less(t, c.R, uint8(60))
}

func TestThumbnailer_FallsBackToFirstFrame(t *testing.T) {
	t.Run("midpoint falls in a gap", func(t *testing.T) {
		stream := fragment(t, testTrack,
			frame(0, 1000, solidJPEG(t, 64, 48, red)),
			frame(5000, 1000, solidJPEG(t, 64, 48, blue)),
		)
		out, err := newThumbnailer(320, 1).Extract(context.Background(), stream)
		require.NoError(t, err)

		_, c := dominant(t, out)
		assert.Greater(t, c.R, uint8(200))
	})

	t.Run("midpoint frame is unreadable", func(t *testing.T) {
		stream := fragment(t, testTrack,
			frame(0, 1000, solidJPEG(t, 64, 48, red)),
			frame(1000, 1000, []byte("corrupt")),
			frame(2000, 1000, []byte("corrupt")),
		)
		out, err := newThumbnailer(320, 1).Extract(context.Background(), stream)
		require.NoError(t, err)

		_, c := dominant(t, out)
		assert.Greater(t, c.R, uint8(200))
	})

	t.Run("nothing readable", func(t *testing.T) {
		stream := fragment(t, testTrack,
			frame(0, 1000, []byte("corrupt")),
			frame(1000, 1000, []byte("corrupt")),
		)
		_, err := newThumbnailer(320, 1).Extract(context.Background(), stream)
		assert.ErrorIs(t, err, lapse.ErrDecodeFailure)
	})

	t.Run("no frames", func(t *testing.T) {
		_, err := newThumbnailer(320, 1).Extract(context.Background(), fragment(t, testTrack))
		assert.ErrorIs(t, err, lapse.ErrDecodeFailure)
	})
}

func TestThumbnailer_BoundsSize(t *testing.T) {
	wide := media.Track{Width: 1600, Height: 900, Format: media.FormatJPEG}

	tests := []struct {
		name    string
		maxDim  int
		density float64
		wantW   int
		wantH   int
	}{
		{"scaled to bound", 320, 1, 320, 180},
		{"pixel density doubles the bound", 320, 2, 640, 360},
		{"already small enough", 4000, 1, 1600, 900},
	}
	src := solidJPEG(t, 1600, 900, green)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := fragment(t, wide, frame(0, 1000, src))
			out, err := newThumbnailer(tt.maxDim, tt.density).Extract(context.Background(), stream)
			require.NoError(t, err)

			bounds, _ := dominant(t, out)
			assert.Equal(t, tt.wantW, bounds.Dx())
			assert.Equal(t, tt.wantH, bounds.Dy())
		})
	}
}
