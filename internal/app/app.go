package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lapse-go/internal/config"
	"lapse-go/internal/database"
	"lapse-go/internal/encryption"
	"lapse-go/internal/lapse"
	"lapse-go/internal/media"
	"lapse-go/internal/remote"
	"lapse-go/internal/spool"
	"lapse-go/internal/store"
	"lapse-go/internal/upload"
)

// LapseApp is the application layer between the CLI and LapseService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw file paths, and manages the store lifecycle on Close.
type LapseApp struct {
	cfg         *config.Config
	store       *store.CaptureStore
	thumbnailer *media.Thumbnailer
	service     *lapse.LapseService
	op          *Operation
	logger      lapse.Logger
	logFile     *os.File
}

// NewLapseApp creates a fully wired LapseApp from the given config.
// operation identifies the CLI command being run (e.g. "start", "finish").
// The caller must call Close when done.
func NewLapseApp(ctx context.Context, cfg *config.Config, operation string) (*LapseApp, error) {
	op := NewOperation(operation, time.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fail := func(err error) (*LapseApp, error) {
		logFile.Close()
		return nil, err
	}

	if cfg.Merge.CaptureTickMs <= 0 || cfg.Merge.TargetPeriodMs <= 0 {
		return fail(fmt.Errorf("merge.capture_tick_ms and merge.target_period_ms must be positive"))
	}

	env, err := encryption.NewEnvelopeFromConfig(cfg.Encryption)
	if err != nil {
		return fail(fmt.Errorf("creating envelope: %w", err))
	}

	clock := lapse.RealClock{}
	idgen := lapse.UUIDGenerator{}

	rem, err := remote.NewRemoteFromConfig(cfg.Remote, idgen, clock)
	if err != nil {
		return fail(fmt.Errorf("creating remote: %w", err))
	}

	up, err := upload.NewUploaderFromConfig(ctx, cfg.Upload)
	if err != nil {
		return fail(fmt.Errorf("creating uploader: %w", err))
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fail(fmt.Errorf("creating database: %w", err))
	}
	st := store.New(db, clock)

	codec := media.LPSF{}
	merger := media.NewMerger(codec,
		time.Duration(cfg.Merge.CaptureTickMs)*time.Millisecond,
		time.Duration(cfg.Merge.TargetPeriodMs)*time.Millisecond,
		logger)
	thumbnailer := media.NewThumbnailer(codec, cfg.Merge.ThumbnailMaxDimension, cfg.Merge.PixelDensity, logger)

	svc := lapse.NewLapseService(lapse.Deps{
		Store:       st,
		Merger:      merger,
		Thumbnailer: thumbnailer,
		Envelope:    env,
		Registry:    rem,
		Drafts:      rem,
		Uploader:    up,
		Sealer:      encryption.NewAgeSealer(),
		Passkeys:    encryption.NewPasskey,
		DeviceName:  cfg.DeviceName,
		Logger:      logger,
		Clock:       clock,
		IDGen:       idgen,
	})

	logger.Debug("operation started", "operation", op.Name)
	return &LapseApp{
		cfg:         cfg,
		store:       st,
		thumbnailer: thumbnailer,
		service:     svc,
		op:          op,
		logger:      logger,
		logFile:     logFile,
	}, nil
}

// track records the outcome of the operation for the closing log line.
func (a *LapseApp) track(err error) error {
	if err != nil {
		a.op.Fail()
		a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
	}
	return err
}

// Start begins a new recording.
func (a *LapseApp) Start(ctx context.Context, name, description string) (*lapse.Timelapse, error) {
	t, _, err := a.service.Start(ctx, name, description)
	return t, a.track(err)
}

// Capture runs the capture loop against the configured spool directory
// until ctx is cancelled.
func (a *LapseApp) Capture(ctx context.Context) (*lapse.CaptureSummary, error) {
	src, err := spool.NewDir(a.cfg.Capture.SpoolDir, a.cfg.Capture.Ignore)
	if err != nil {
		return nil, a.track(fmt.Errorf("opening spool: %w", err))
	}
	tick := time.Duration(a.cfg.Capture.TickMs) * time.Millisecond
	if tick <= 0 {
		tick = time.Second
	}
	a.logger.Info("capturing", "spool", src.Path(), "tick", tick)
	summary, err := a.service.Capture(ctx, src, tick)
	return summary, a.track(err)
}

// SpoolDir returns the directory the capture pipeline should write to.
func (a *LapseApp) SpoolDir() string {
	return a.cfg.Capture.SpoolDir
}

// Status reports on the active recording, or returns nil when none is active.
func (a *LapseApp) Status(ctx context.Context) (*lapse.Status, error) {
	st, err := a.service.Status(ctx)
	return st, a.track(err)
}

// activeID returns id, or the active recording's ID when id is zero.
func (a *LapseApp) activeID(ctx context.Context, id int64) (int64, error) {
	if id != 0 {
		return id, nil
	}
	st, err := a.service.Status(ctx)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, fmt.Errorf("no active recording: %w", lapse.ErrNotFound)
	}
	return st.Timelapse.ID, nil
}

// Finish uploads a recording. An id of zero selects the active recording.
func (a *LapseApp) Finish(ctx context.Context, id int64) (*lapse.FinishResult, error) {
	id, err := a.activeID(ctx, id)
	if err != nil {
		return nil, a.track(err)
	}
	res, err := a.service.Finish(ctx, id)
	return res, a.track(err)
}

// Discard deletes a recording. An id of zero selects the active recording.
func (a *LapseApp) Discard(ctx context.Context, id int64) (int64, error) {
	id, err := a.activeID(ctx, id)
	if err != nil {
		return 0, a.track(err)
	}
	return id, a.track(a.service.Discard(ctx, id))
}

// DecryptFile decrypts inPath into outPath. An empty passkey uses this
// device's passkey. Thumbnails are sealed under their own identifier derived
// from the draft ID; set thumbnail to decrypt one given the draft ID.
func (a *LapseApp) DecryptFile(ctx context.Context, inPath, outPath, recordingID, passkey string, thumbnail bool) error {
	if thumbnail {
		recordingID = lapse.ThumbnailRecordingID(recordingID)
	}
	ciphertext, err := os.ReadFile(inPath)
	if err != nil {
		return a.track(fmt.Errorf("reading %s: %w", inPath, err))
	}
	plaintext, err := a.service.Decrypt(ctx, ciphertext, recordingID, passkey)
	if err != nil {
		return a.track(err)
	}
	return a.track(writeOutput(outPath, plaintext))
}

// ThumbnailFile renders a preview JPEG of an unencrypted stream.
func (a *LapseApp) ThumbnailFile(ctx context.Context, inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return a.track(fmt.Errorf("reading %s: %w", inPath, err))
	}
	thumb, err := a.thumbnailer.Extract(ctx, data)
	if err != nil {
		return a.track(err)
	}
	return a.track(writeOutput(outPath, thumb))
}

// Device returns this device's identity, or nil if none is stored.
func (a *LapseApp) Device(ctx context.Context) (*lapse.Device, error) {
	d, err := a.service.ThisDevice(ctx)
	return d, a.track(err)
}

// RegisterDevice returns this device's identity, registering it if needed.
func (a *LapseApp) RegisterDevice(ctx context.Context) (*lapse.Device, error) {
	d, err := a.service.EnsureDevice(ctx)
	return d, a.track(err)
}

// ResetDevice forgets this device's identity.
func (a *LapseApp) ResetDevice(ctx context.Context) (string, error) {
	id, err := a.service.ResetDevice(ctx)
	return id, a.track(err)
}

// ExportDevice writes the sealed identity to path, or stdout for "-".
func (a *LapseApp) ExportDevice(ctx context.Context, path, passphrase string) error {
	if path == "-" {
		return a.track(a.service.ExportDevice(ctx, passphrase, os.Stdout))
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return a.track(fmt.Errorf("creating %s: %w", path, err))
	}
	if err := a.service.ExportDevice(ctx, passphrase, f); err != nil {
		f.Close()
		os.Remove(path)
		return a.track(err)
	}
	return a.track(f.Close())
}

// ImportDevice reads a sealed identity from path, or stdin for "-".
func (a *LapseApp) ImportDevice(ctx context.Context, path, passphrase string) (*lapse.Device, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, a.track(fmt.Errorf("opening %s: %w", path, err))
		}
		defer f.Close()
		r = f
	}
	d, err := a.service.ImportDevice(ctx, r, passphrase)
	return d, a.track(err)
}

// Close waits for pending store writes, closes the database and the log file.
func (a *LapseApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}

	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status)
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
