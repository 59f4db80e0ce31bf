package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lapse-go/internal/lapse"
)

var logTime = time.Date(2024, 6, 15, 14, 30, 45, 120_000_000, time.UTC)

func handle(t *testing.T, h slog.Handler, level slog.Level, msg string, attrs ...slog.Attr) {
	t.Helper()
	r := slog.NewRecord(logTime, level, msg, 0)
	r.AddAttrs(attrs...)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestLapseHandler_Handle(t *testing.T) {
	stageErr := &lapse.StageError{SessionID: 7, Stage: lapse.StageUpload, Err: errors.New("connection reset")}

	tests := []struct {
		name  string
		attrs []slog.Attr
		want  string
	}{
		{
			name: "message only",
			want: "2024-06-15T14:30:45.120Z\tINFO\t20240615T143045Z-capture\tcapture stopped\n",
		},
		{
			name:  "record attrs",
			attrs: []slog.Attr{slog.Int64("timelapse", 3), slog.String("epoch", "id-2")},
			want:  "2024-06-15T14:30:45.120Z\tINFO\t20240615T143045Z-capture\tcapture stopped\ttimelapse=3\tepoch=id-2\n",
		},
		{
			name:  "stage error is expanded",
			attrs: []slog.Attr{slog.Any("error", stageErr)},
			want:  "2024-06-15T14:30:45.120Z\tINFO\t20240615T143045Z-capture\tcapture stopped\terror=connection reset\tstage=upload\ttimelapse=7\n",
		},
		{
			name:  "plain error",
			attrs: []slog.Attr{slog.Any("error", lapse.ErrNotFound)},
			want:  "2024-06-15T14:30:45.120Z\tINFO\t20240615T143045Z-capture\tcapture stopped\terror=not found\n",
		},
		{
			name:  "group attr",
			attrs: []slog.Attr{slog.Group("merge", slog.Int("epochs", 2))},
			want:  "2024-06-15T14:30:45.120Z\tINFO\t20240615T143045Z-capture\tcapture stopped\tmerge.epochs=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newLapseHandler(&buf, "20240615T143045Z-capture", slog.LevelDebug)
			handle(t, h, slog.LevelInfo, "capture stopped", tt.attrs...)

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLapseHandler_WrappedStageError(t *testing.T) {
	var buf bytes.Buffer
	h := newLapseHandler(&buf, "op", slog.LevelInfo)
	err := &lapse.StageError{SessionID: 4, Stage: lapse.StageMerge, Err: lapse.ErrDecodeFailure}

	handle(t, h, slog.LevelError, "finish failed", slog.Any("error", errors.Join(errors.New("finish"), err)))

	got := buf.String()
	if !strings.Contains(got, "\tstage=merge\ttimelapse=4\n") {
		t.Errorf("expected stage and timelapse attrs, got: %q", got)
	}
}

func TestLapseHandler_Enabled(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Leveler
		want  map[slog.Level]bool
	}{
		{
			name:  "info threshold",
			level: slog.LevelInfo,
			want:  map[slog.Level]bool{slog.LevelDebug: false, slog.LevelInfo: true, slog.LevelError: true},
		},
		{
			name:  "debug threshold",
			level: slog.LevelDebug,
			want:  map[slog.Level]bool{slog.LevelDebug: true, slog.LevelInfo: true},
		},
		{
			name:  "unset defaults to info",
			level: nil,
			want:  map[slog.Level]bool{slog.LevelDebug: false, slog.LevelWarn: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &lapseHandler{level: tt.level}
			for level, want := range tt.want {
				if got := h.Enabled(context.Background(), level); got != want {
					t.Errorf("Enabled(%v) = %v, want %v", level, got, want)
				}
			}
		})
	}
}

func TestLapseHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := newLapseHandler(&buf, "op", slog.LevelInfo)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "store")})
	h3 := h2.WithGroup("upload").WithAttrs([]slog.Attr{slog.String("target", "s3")})

	handle(t, h3, slog.LevelInfo, "put", slog.String("key", "abc"))

	got := buf.String()
	for _, want := range []string{"\tcomponent=store", "\tupload.target=s3", "\tupload.key=abc"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestLapseHandler_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLapseHandler(&buf, "op", slog.LevelInfo))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info("uploaded", "part", j)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("got %d lines, want 400", len(lines))
	}
	for _, l := range lines {
		if strings.Count(l, "\t") != 4 || !strings.Contains(l, "\tuploaded\tpart=") {
			t.Fatalf("malformed line %q", l)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op", "warn")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("recording started")
	logger.Warn("sample timestamps went backwards", "epoch", "id-1")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "lapse.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "recording started") {
		t.Errorf("info record written below warn threshold: %q", got)
	}
	if !strings.Contains(got, "\tWARN\ttest-op\tsample timestamps went backwards\tepoch=id-1\n") {
		t.Errorf("warn record missing: %q", got)
	}

	if _, _, err := newLogger(dir, "test-op", "chatty"); err == nil {
		t.Error("newLogger() expected error for unknown level")
	}
}
