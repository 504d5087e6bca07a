package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"manualqa/internal"
	"manualqa/services"
)

func TestLoadConfiguration_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MANUALQA_API_URL", "https://env.example.com/v1")
	t.Setenv("MANUALQA_TIMEOUT", "15")
	t.Cleanup(func() {
		apiURL, timeout, config = "", 0, nil
	})

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&apiURL, "api-url", "", "")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "")
	if err := cmd.Flags().Set("timeout", "200"); err != nil {
		t.Fatal(err)
	}

	if err := loadConfiguration(cmd); err != nil {
		t.Fatalf("loadConfiguration() error = %v", err)
	}
	if config.APIBaseURL != "https://env.example.com/v1" {
		t.Errorf("api url = %q, want the environment value", config.APIBaseURL)
	}
	if config.RequestTimeout != 200 {
		t.Errorf("timeout = %d, want the flag value 200", config.RequestTimeout)
	}
	if config.UploadTimeout < config.RequestTimeout {
		t.Errorf("upload timeout %d shorter than request timeout %d", config.UploadTimeout, config.RequestTimeout)
	}
}

func TestLoadConfiguration_RejectsInvalid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MANUALQA_MAX_REQUEST_SIZE", "lots")
	t.Cleanup(func() { config = nil })

	err := loadConfiguration(&cobra.Command{Use: "test"})
	if !errors.Is(err, internal.ErrInvalidConfig) {
		t.Errorf("loadConfiguration() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"text", false},
		{"json", false},
		{"yaml", false},
		{"xml", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := validateOutputFormat(tt.format); (err != nil) != tt.wantErr {
			t.Errorf("validateOutputFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestWriteUsage(t *testing.T) {
	u := &services.Usage{QueriesToday: 3, DailyLimit: 50, ManualsStored: 2, StorageBytes: 2048, StorageLimitBytes: 4096}

	tests := []struct {
		format string
		want   []string
	}{
		{format: "json", want: []string{`"queriesToday": 3`, `"dailyLimit": 50`}},
		{format: "yaml", want: []string{"queriesToday: 3", "manualsStored: 2"}},
		{format: "text", want: []string{"3 of 50 used, 47 left", "50%"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeUsage(&buf, u, tt.format); err != nil {
				t.Fatalf("writeUsage() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestFormatSource(t *testing.T) {
	tests := []struct {
		name   string
		source services.Source
		want   string
	}{
		{name: "title and page", source: services.Source{ManualTitle: "Oven", Page: 4}, want: "Oven, p. 4"},
		{name: "id fallback", source: services.Source{ManualID: "man-1"}, want: "man-1"},
		{name: "nothing known", source: services.Source{}, want: "manual"},
		{name: "excerpt", source: services.Source{ManualTitle: "Oven", Excerpt: "Preheat  for\nten minutes"}, want: "Oven: Preheat for ten minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSource(tt.source); got != tt.want {
				t.Errorf("formatSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestConfirmed(t *testing.T) {
	for _, answer := range []string{"y", "Y", "yes", " YES "} {
		if !confirmed(answer) {
			t.Errorf("confirmed(%q) = false", answer)
		}
	}
	for _, answer := range []string{"", "n", "no", "yep"} {
		if confirmed(answer) {
			t.Errorf("confirmed(%q) = true", answer)
		}
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "auth required",
			err:  internal.NewAuthRequiredError("no saved session", nil),
			want: []string{"Please sign in again to continue.", "manualqa login"},
		},
		{
			name: "wrapped classified",
			err:  fmt.Errorf("ask: %w", internal.NewPayloadTooLargeError(2048, 1024)),
			want: []string{"The request is too large"},
		},
		{
			name: "validation",
			err:  internal.NewValidationErrorWithValue("output", "unsupported output format", "xml").WithSuggestion("Use one of: text, json, yaml"),
			want: []string{"unsupported output format", "Use one of: text, json, yaml"},
		},
		{
			name: "plain",
			err:  errors.New("a question is required"),
			want: []string{"a question is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

type fakeRecorder struct {
	permission internal.Permission
	recording  atomic.Bool
	autoStopAt time.Duration
	stopped    atomic.Int32
}

func (f *fakeRecorder) RequestPermission(ctx context.Context) (internal.Permission, error) {
	return f.permission, nil
}

func (f *fakeRecorder) StartRecording(ctx context.Context, opts internal.RecordingOptions) error {
	f.recording.Store(true)
	if f.autoStopAt > 0 {
		time.AfterFunc(f.autoStopAt, func() { f.recording.Store(false) })
	}
	return nil
}

func (f *fakeRecorder) StopRecording(ctx context.Context) (*internal.Recording, error) {
	f.stopped.Add(1)
	f.recording.Store(false)
	return &internal.Recording{URI: "/tmp/clip.wav", DurationSeconds: 1.5, SizeBytes: 48044, Format: "wav"}, nil
}

func (f *fakeRecorder) IsRecording() bool {
	return f.recording.Load()
}

// blockingReader never delivers a line
type blockingReader struct{ done chan struct{} }

func (b blockingReader) Read(p []byte) (int, error) {
	<-b.done
	return 0, context.Canceled
}

func TestCaptureClip(t *testing.T) {
	t.Run("enter stops", func(t *testing.T) {
		rec := &fakeRecorder{permission: internal.PermissionGranted}
		clip, err := captureClip(context.Background(), rec, 30, strings.NewReader("\n"), &bytes.Buffer{})
		if err != nil {
			t.Fatalf("captureClip() error = %v", err)
		}
		if clip.Format != "wav" || rec.stopped.Load() != 1 {
			t.Errorf("clip = %+v, stops = %d", clip, rec.stopped.Load())
		}
	})

	t.Run("auto stop ends the wait", func(t *testing.T) {
		done := make(chan struct{})
		defer close(done)

		rec := &fakeRecorder{permission: internal.PermissionGranted, autoStopAt: 50 * time.Millisecond}
		if _, err := captureClip(context.Background(), rec, 0.05, blockingReader{done}, &bytes.Buffer{}); err != nil {
			t.Fatalf("captureClip() error = %v", err)
		}
		if rec.stopped.Load() != 1 {
			t.Errorf("stops = %d, want 1", rec.stopped.Load())
		}
	})

	t.Run("cancelled context still stops", func(t *testing.T) {
		done := make(chan struct{})
		defer close(done)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := &fakeRecorder{permission: internal.PermissionGranted}
		if _, err := captureClip(ctx, rec, 30, blockingReader{done}, &bytes.Buffer{}); err != nil {
			t.Fatalf("captureClip() error = %v", err)
		}
		if rec.stopped.Load() != 1 {
			t.Errorf("stops = %d, want 1", rec.stopped.Load())
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		rec := &fakeRecorder{permission: internal.PermissionDenied}
		_, err := captureClip(context.Background(), rec, 30, strings.NewReader("\n"), &bytes.Buffer{})
		if !errors.Is(err, internal.ErrConstraintViolation) {
			t.Errorf("captureClip() error = %v, want constraint violation", err)
		}
		if rec.recording.Load() {
			t.Error("recording started without permission")
		}
	})
}

func TestWriteOutputFile(t *testing.T) {
	dir := t.TempDir()

	err := writeOutputFile(dir, []byte("x"))
	var ve *internal.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("writeOutputFile(dir) error = %v, want ValidationError", err)
	}

	path := dir + "/page.png"
	if err := writeOutputFile(path, []byte("png")); err != nil {
		t.Fatalf("writeOutputFile() error = %v", err)
	}
}

func TestPrintTranscript_Plain(t *testing.T) {
	var buf bytes.Buffer
	printTranscript(&buf, "how do I descale it", false)
	if got := buf.String(); got != "You asked: how do I descale it\n\n" {
		t.Errorf("printTranscript() = %q", got)
	}
}
