package media_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapse-go/internal/lapse"
	"lapse-go/internal/media"
)

func TestLPSF_EncodeDecode(t *testing.T) {
	enc, err := media.LPSF{}.NewEncoder(testTrack)
	require.NoError(t, err)
	defer enc.Close()

	require.NoError(t, enc.WriteSample(sample(0, 400, "one")))
	require.NoError(t, enc.WriteSample(&media.Sample{Timestamp: ms(400), Duration: ms(400), Data: []byte("two")}))
	out, err := enc.Finish()
	require.NoError(t, err)

	_, err = enc.Finish()
	assert.Error(t, err, "Finish twice should fail")

	track, samples := decodeAll(t, out)
	assert.Equal(t, testTrack, track)
	require.Len(t, samples, 2)
	assert.Equal(t, ms(400), samples[1].Timestamp)
	assert.Equal(t, ms(400), samples[1].Duration)
	assert.False(t, samples[1].Keyframe)
	assert.True(t, samples[0].Keyframe)
	assert.Equal(t, "two", string(samples[1].Data))
}

func TestLPSF_ConcatenatedFragments(t *testing.T) {
	var stream []byte
	stream = append(stream, fragment(t, testTrack, sample(0, 1000, "a"))...)
	stream = append(stream, fragment(t, testTrack, sample(1000, 1000, "b"), sample(2000, 1000, "c"))...)

	_, samples := decodeAll(t, stream)
	require.Len(t, samples, 3)
	assert.Equal(t, "c", string(samples[2].Data))
}

func TestLPSF_DecodeFailures(t *testing.T) {
	var noTrack bytes.Buffer
	require.NoError(t, media.WriteSample(&noTrack, sample(0, 1000, "x")))

	other := testTrack
	other.Width = 128
	changed := append(fragment(t, testTrack, sample(0, 1000, "a")), fragment(t, other, sample(1000, 1000, "b"))...)

	good := fragment(t, testTrack, sample(0, 1000, "payload"))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty stream", nil},
		{"no track record", noTrack.Bytes()},
		{"garbage", []byte("definitely not a stream")},
		{"truncated sample", good[:len(good)-3]},
		{"track changes size", changed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := media.LPSF{}.NewDecoder(bytes.NewReader(tt.data))
			if err == nil {
				defer dec.Close()
				for err == nil {
					_, err = dec.Next()
				}
			}
			assert.ErrorIs(t, err, lapse.ErrDecodeFailure)
		})
	}
}

func TestLPSF_UnsupportedEncoder(t *testing.T) {
	tests := []struct {
		name  string
		track media.Track
	}{
		{"zero size", media.Track{Format: media.FormatJPEG}},
		{"too wide", media.Track{Width: media.MaxDimension + 1, Height: 10, Format: media.FormatJPEG}},
		{"unknown format", media.Track{Width: 10, Height: 10, Format: media.Format{'w', 'e', 'b', 'p'}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := media.LPSF{}.NewEncoder(tt.track)
			assert.ErrorIs(t, err, lapse.ErrUnsupportedCodec)
		})
	}
}

func TestLPSF_TimestampsKeepMicrosecondPrecision(t *testing.T) {
	s := &media.Sample{Timestamp: 1500 * time.Microsecond, Duration: 7 * time.Microsecond}
	_, samples := decodeAll(t, fragment(t, testTrack, s))
	require.Len(t, samples, 1)
	assert.Equal(t, s.Timestamp, samples[0].Timestamp)
	assert.Equal(t, s.Duration, samples[0].Duration)
}
