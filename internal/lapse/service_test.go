package lapse_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"lapse-go/internal/lapse"
	"lapse-go/internal/media"
	"lapse-go/internal/testutil"
	"lapse-go/internal/upload"
)

// testEnv wires a LapseService to real local components and in-memory fakes
// for everything remote.
type testEnv struct {
	svc      *lapse.LapseService
	store    lapse.CaptureStore
	clock    *testutil.StubClock
	registry *testutil.FakeRegistry
	drafts   *testutil.FakeDrafts
	uploads  *upload.MemoryUploader
	envelope lapse.Envelope
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithClock(t, testutil.FixedClock())
}

func newTestEnvWithClock(t *testing.T, clock *testutil.StubClock) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    testutil.NewTestStore(t, clock),
		clock:    clock,
		registry: testutil.NewFakeRegistry(),
		drafts:   testutil.NewFakeDrafts(),
		uploads:  upload.NewMemoryUploader(),
		envelope: testutil.NewTestEnvelope(),
	}

	logger := lapse.NewNopLogger()
	env.svc = lapse.NewLapseService(lapse.Deps{
		Store:       env.store,
		Merger:      media.NewMerger(media.LPSF{}, time.Second, 2500*time.Millisecond, logger),
		Thumbnailer: media.NewThumbnailer(media.LPSF{}, 320, 1, logger),
		Envelope:    env.envelope,
		Registry:    env.registry,
		Drafts:      env.drafts,
		Uploader:    env.uploads,
		Sealer:      testutil.NewTestSealer(),
		Passkeys:    testutil.FixedPasskeys("111111", "222222", "333333"),
		DeviceName:  "test-device",
		Logger:      logger,
		Clock:       clock,
		IDGen:       testutil.NewPrefixedIDGenerator("epoch"),
	})
	return env
}

var frameTrack = media.Track{Width: 64, Height: 48, FramePeriod: time.Second, Format: media.FormatJPEG}

func solidFrame(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, frameTrack.Width, frameTrack.Height))
	for y := 0; y < frameTrack.Height; y++ {
		for x := 0; x < frameTrack.Width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// fragment encodes one flushed media fragment holding a 1s frame at each
// of the given timestamps (in seconds).
func fragment(t *testing.T, seconds ...int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := media.WriteTrack(&buf, frameTrack); err != nil {
		t.Fatalf("WriteTrack() error = %v", err)
	}
	frame := solidFrame(t, color.RGBA{R: 200, G: 80, B: 20, A: 255})
	for _, sec := range seconds {
		s := &media.Sample{
			Timestamp: time.Duration(sec) * time.Second,
			Duration:  time.Second,
			Keyframe:  true,
			Data:      frame,
		}
		if err := media.WriteSample(&buf, s); err != nil {
			t.Fatalf("WriteSample() error = %v", err)
		}
	}
	return buf.Bytes()
}

func TestLapseService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active recording with a fresh epoch", func(t *testing.T) {
		env := newTestEnv(t)

		tl, epoch, err := env.svc.Start(ctx, "sunset", "from the balcony")
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if tl.ID == 0 || !tl.IsActive {
			t.Errorf("Start() = %+v, want saved active recording", tl)
		}
		if epoch != "epoch-1" {
			t.Errorf("Start() epoch = %q, want %q", epoch, "epoch-1")
		}
		if !tl.StartedAt.Equal(env.clock.Now()) {
			t.Errorf("StartedAt = %v, want %v", tl.StartedAt, env.clock.Now())
		}

		active, err := env.store.GetActiveSession(ctx)
		if err != nil {
			t.Fatalf("GetActiveSession() error = %v", err)
		}
		if active == nil || active.ID != tl.ID || active.Name != "sunset" {
			t.Errorf("GetActiveSession() = %+v, want the new recording", active)
		}
	})

	t.Run("refuses a second active recording", func(t *testing.T) {
		env := newTestEnv(t)

		if _, _, err := env.svc.Start(ctx, "first", ""); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		_, _, err := env.svc.Start(ctx, "second", "")
		if !errors.Is(err, lapse.ErrActiveSessionExists) {
			t.Errorf("second Start() error = %v, want ErrActiveSessionExists", err)
		}
	})
}

func TestLapseService_Resume(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil without an active recording", func(t *testing.T) {
		env := newTestEnv(t)

		tl, epoch, err := env.svc.Resume(ctx)
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if tl != nil || epoch != "" {
			t.Errorf("Resume() = %+v, %q; want nil, empty", tl, epoch)
		}
	})

	t.Run("mints a new epoch for the active recording", func(t *testing.T) {
		env := newTestEnv(t)

		started, first, err := env.svc.Start(ctx, "sunset", "")
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := env.svc.AppendChunk(ctx, started.ID, fragment(t, 0), first); err != nil {
			t.Fatalf("AppendChunk() error = %v", err)
		}

		resumed, second, err := env.svc.Resume(ctx)
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if resumed.ID != started.ID {
			t.Errorf("Resume() id = %d, want %d", resumed.ID, started.ID)
		}
		if first != "epoch-1" || second != "epoch-2" {
			t.Errorf("epochs = %q, %q; want epoch-1, epoch-2", first, second)
		}
		if len(resumed.Chunks) != 1 {
			t.Errorf("len(Chunks) = %d, want 1", len(resumed.Chunks))
		}
	})
}

func TestLapseService_AppendChunk_UnknownRecording(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.AppendChunk(context.Background(), 999, []byte("x"), "e1")
	if !errors.Is(err, lapse.ErrNotFound) {
		t.Errorf("AppendChunk() error = %v, want ErrNotFound", err)
	}
}

func TestLapseService_Status(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	st, err := env.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st != nil {
		t.Errorf("Status() = %+v, want nil without an active recording", st)
	}

	tl, a, err := env.svc.Start(ctx, "sunset", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		env.clock.Advance(time.Second)
		if _, err := env.svc.RecordFrame(ctx, a); err != nil {
			t.Fatalf("RecordFrame() error = %v", err)
		}
		if err := env.svc.AppendChunk(ctx, tl.ID, fragment(t, i), a); err != nil {
			t.Fatalf("AppendChunk() error = %v", err)
		}
	}
	_, b, err := env.svc.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	env.clock.Advance(time.Second)
	if _, err := env.svc.RecordFrame(ctx, b); err != nil {
		t.Fatalf("RecordFrame() error = %v", err)
	}
	if err := env.svc.AppendChunk(ctx, tl.ID, fragment(t, 0), b); err != nil {
		t.Fatalf("AppendChunk() error = %v", err)
	}

	st, err = env.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Timelapse.ID != tl.ID || st.Chunks != 3 || st.Epochs != 2 || st.Frames != 3 {
		t.Errorf("Status() = {id %d, chunks %d, epochs %d, frames %d}, want {%d, 3, 2, 3}",
			st.Timelapse.ID, st.Chunks, st.Epochs, st.Frames, tl.ID)
	}
}

func TestLapseService_Discard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tl, epoch, err := env.svc.Start(ctx, "oops", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := env.svc.RecordFrame(ctx, epoch); err != nil {
		t.Fatalf("RecordFrame() error = %v", err)
	}
	if err := env.svc.AppendChunk(ctx, tl.ID, fragment(t, 0), epoch); err != nil {
		t.Fatalf("AppendChunk() error = %v", err)
	}

	if err := env.svc.Discard(ctx, tl.ID); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}

	got, err := env.store.GetSession(ctx, tl.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got != nil {
		t.Error("recording still present after Discard")
	}
	markers, _ := env.store.GetAllFrameMarkers(ctx)
	if len(markers) != 0 {
		t.Errorf("len(markers) = %d after Discard, want 0", len(markers))
	}

	if _, _, err := env.svc.Start(ctx, "again", ""); err != nil {
		t.Errorf("Start() after Discard error = %v", err)
	}
}
