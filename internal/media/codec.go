// Package media assembles captured fragments into a single stream and
// extracts preview stills from it.
//
// Fragments use the LPSF container: a sequence of self-delimiting records,
// each starting with the magic "LPSF" and a kind byte. A track record
// describes the video; sample records carry one encoded still each.
// Concatenating fragments at record boundaries yields a decodable stream.
package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"lapse-go/internal/lapse"
)

// MaxDimension is the largest width or height the encoder accepts.
const MaxDimension = 8192

// maxPayload bounds a single sample so a corrupt length cannot exhaust memory.
const maxPayload = 64 << 20

var magic = [4]byte{'L', 'P', 'S', 'F'}

const (
	kindTrack  byte = 1
	kindSample byte = 2
)

const flagKeyframe byte = 1

// Format identifies how sample payloads are encoded.
type Format [4]byte

var (
	FormatJPEG = Format{'j', 'p', 'e', 'g'}
	FormatPNG  = Format{'p', 'n', 'g', ' '}
)

func (f Format) String() string { return string(f[:]) }

// Track describes the video carried by a stream.
type Track struct {
	Width       int
	Height      int
	FramePeriod time.Duration
	Format      Format
}

// Sample is one still frame on the stream's timeline.
type Sample struct {
	Timestamp time.Duration
	Duration  time.Duration
	Keyframe  bool
	Data      []byte
}

// Decoder reads samples from a stream. Next returns io.EOF after the last sample.
type Decoder interface {
	Track() Track
	Next() (*Sample, error)
	Close() error
}

// Encoder writes samples into a new stream. Finish returns the encoded bytes;
// the encoder cannot be used afterwards.
type Encoder interface {
	WriteSample(s *Sample) error
	Finish() ([]byte, error)
	Close() error
}

// Codec creates decoders and encoders for one container format.
type Codec interface {
	NewDecoder(r io.Reader) (Decoder, error)
	NewEncoder(t Track) (Encoder, error)
}

// LPSF is the Codec for the LPSF container.
type LPSF struct{}

var _ Codec = LPSF{}

// NewDecoder reads the track record that must open the stream.
func (LPSF) NewDecoder(r io.Reader) (Decoder, error) {
	d := &lpsfDecoder{r: r}
	kind, err := d.readHeader()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty stream: %w", lapse.ErrDecodeFailure)
		}
		return nil, err
	}
	if kind != kindTrack {
		return nil, fmt.Errorf("stream has no video track: %w", lapse.ErrDecodeFailure)
	}
	if d.track, err = d.readTrack(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewEncoder fails with ErrUnsupportedCodec when the track cannot be encoded.
func (LPSF) NewEncoder(t Track) (Encoder, error) {
	if t.Width <= 0 || t.Height <= 0 || t.Width > MaxDimension || t.Height > MaxDimension {
		return nil, fmt.Errorf("resolution %dx%d: %w", t.Width, t.Height, lapse.ErrUnsupportedCodec)
	}
	if t.Format != FormatJPEG && t.Format != FormatPNG {
		return nil, fmt.Errorf("payload format %q: %w", t.Format, lapse.ErrUnsupportedCodec)
	}

	e := &lpsfEncoder{buf: new(bytes.Buffer)}
	if err := WriteTrack(e.buf, t); err != nil {
		return nil, err
	}
	return e, nil
}

// WriteTrack writes a track record.
func WriteTrack(w io.Writer, t Track) error {
	rec := make([]byte, 0, 5+4+4+8+4)
	rec = append(rec, magic[:]...)
	rec = append(rec, kindTrack)
	rec = binary.BigEndian.AppendUint32(rec, uint32(t.Width))
	rec = binary.BigEndian.AppendUint32(rec, uint32(t.Height))
	rec = binary.BigEndian.AppendUint64(rec, uint64(t.FramePeriod.Microseconds()))
	rec = append(rec, t.Format[:]...)
	if _, err := w.Write(rec); err != nil {
		return fmt.Errorf("writing track record: %w", err)
	}
	return nil
}

// WriteSample writes a sample record. Times are stored in microseconds.
func WriteSample(w io.Writer, s *Sample) error {
	if len(s.Data) > maxPayload {
		return fmt.Errorf("sample payload of %d bytes exceeds %d", len(s.Data), maxPayload)
	}
	var flags byte
	if s.Keyframe {
		flags |= flagKeyframe
	}

	rec := make([]byte, 0, 5+1+8+8+4+len(s.Data))
	rec = append(rec, magic[:]...)
	rec = append(rec, kindSample, flags)
	rec = binary.BigEndian.AppendUint64(rec, uint64(s.Timestamp.Microseconds()))
	rec = binary.BigEndian.AppendUint64(rec, uint64(s.Duration.Microseconds()))
	rec = binary.BigEndian.AppendUint32(rec, uint32(len(s.Data)))
	rec = append(rec, s.Data...)
	if _, err := w.Write(rec); err != nil {
		return fmt.Errorf("writing sample record: %w", err)
	}
	return nil
}

type lpsfDecoder struct {
	r     io.Reader
	track Track
}

func (d *lpsfDecoder) Track() Track { return d.track }

// readHeader returns io.EOF only when the stream ends cleanly between records.
func (d *lpsfDecoder) readHeader() (byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("reading record header: %v: %w", err, lapse.ErrDecodeFailure)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return 0, fmt.Errorf("bad record magic %q: %w", hdr[:4], lapse.ErrDecodeFailure)
	}
	return hdr[4], nil
}

func (d *lpsfDecoder) readFull(buf []byte, what string) error {
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return fmt.Errorf("reading %s: %v: %w", what, err, lapse.ErrDecodeFailure)
	}
	return nil
}

func (d *lpsfDecoder) readTrack() (Track, error) {
	var body [20]byte
	if err := d.readFull(body[:], "track record"); err != nil {
		return Track{}, err
	}
	t := Track{
		Width:       int(binary.BigEndian.Uint32(body[0:4])),
		Height:      int(binary.BigEndian.Uint32(body[4:8])),
		FramePeriod: time.Duration(int64(binary.BigEndian.Uint64(body[8:16]))) * time.Microsecond,
	}
	copy(t.Format[:], body[16:20])
	return t, nil
}

func (d *lpsfDecoder) Next() (*Sample, error) {
	for {
		kind, err := d.readHeader()
		if err != nil {
			return nil, err
		}

		switch kind {
		case kindTrack:
			// Each concatenated fragment may repeat the track record.
			t, err := d.readTrack()
			if err != nil {
				return nil, err
			}
			if t.Width != d.track.Width || t.Height != d.track.Height || t.Format != d.track.Format {
				return nil, fmt.Errorf("track changed mid-stream from %dx%d to %dx%d: %w",
					d.track.Width, d.track.Height, t.Width, t.Height, lapse.ErrDecodeFailure)
			}

		case kindSample:
			return d.readSample()

		default:
			return nil, fmt.Errorf("unknown record kind %d: %w", kind, lapse.ErrDecodeFailure)
		}
	}
}

func (d *lpsfDecoder) readSample() (*Sample, error) {
	var body [21]byte
	if err := d.readFull(body[:], "sample record"); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(body[17:21])
	if n > maxPayload {
		return nil, fmt.Errorf("sample payload of %d bytes: %w", n, lapse.ErrDecodeFailure)
	}

	s := &Sample{
		Keyframe:  body[0]&flagKeyframe != 0,
		Timestamp: time.Duration(int64(binary.BigEndian.Uint64(body[1:9]))) * time.Microsecond,
		Duration:  time.Duration(int64(binary.BigEndian.Uint64(body[9:17]))) * time.Microsecond,
		Data:      make([]byte, n),
	}
	if err := d.readFull(s.Data, "sample payload"); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *lpsfDecoder) Close() error {
	d.r = nil
	return nil
}

type lpsfEncoder struct {
	buf *bytes.Buffer
}

var errEncoderDone = errors.New("encoder already finished")

func (e *lpsfEncoder) WriteSample(s *Sample) error {
	if e.buf == nil {
		return errEncoderDone
	}
	return WriteSample(e.buf, s)
}

func (e *lpsfEncoder) Finish() ([]byte, error) {
	if e.buf == nil {
		return nil, errEncoderDone
	}
	out := e.buf.Bytes()
	e.buf = nil
	return out, nil
}

func (e *lpsfEncoder) Close() error {
	e.buf = nil
	return nil
}
