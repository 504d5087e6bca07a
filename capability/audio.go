package capability

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"manualqa/internal"
)

// captureBackend produces audio into a file for one session
type captureBackend interface {
	permission(ctx context.Context) (internal.Permission, error)
	// begin starts writing audio to path. The returned stop ends capture and
	// reports the recorded length, or zero to fall back to wall-clock time.
	begin(ctx context.Context, path string, opts internal.RecordingOptions) (stop func() (time.Duration, error), err error)
}

type activeSession struct {
	internal.RecordingSession
	opts  internal.RecordingOptions
	stop  func() (time.Duration, error)
	timer *time.Timer
}

// Recorder implements internal.AudioCapture on top of a capture backend. It
// owns at most one session and a temp directory of recordings.
type Recorder struct {
	mu      sync.Mutex
	backend captureBackend
	baseDir string
	tempDir string
	session *activeSession
	// pending holds a session that hit its max duration until the caller stops
	pending *internal.Recording
	now     func() time.Time
}

func newRecorder(backend captureBackend, baseDir string) *Recorder {
	return &Recorder{
		backend: backend,
		baseDir: baseDir,
		now:     time.Now,
	}
}

func (r *Recorder) RequestPermission(ctx context.Context) (internal.Permission, error) {
	return r.backend.permission(ctx)
}

func (r *Recorder) StartRecording(ctx context.Context, opts internal.RecordingOptions) error {
	opts = opts.WithDefaults()
	if opts.Format != "wav" {
		return internal.NewConstraintError("format",
			fmt.Sprintf("Recording format %q isn't supported; use wav.", opts.Format),
			"unsupported recording format "+opts.Format)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return internal.NewContractError(internal.ErrAlreadyRecording, "A recording is already in progress.")
	}

	dir, err := r.ensureTempDir()
	if err != nil {
		return err
	}

	id := uuid.NewString()
	path := filepath.Join(dir, id+".wav")
	stop, err := r.backend.begin(ctx, path, opts)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("start recording: %w", err)
	}

	if r.pending != nil {
		// an auto-stopped clip nobody collected
		if err := os.Remove(r.pending.URI); err != nil && !os.IsNotExist(err) {
			internal.LogDebug("Could not remove uncollected recording %s: %v", r.pending.URI, err)
		}
		r.pending = nil
	}
	r.session = &activeSession{
		RecordingSession: internal.RecordingSession{
			ID:        id,
			URI:       path,
			StartedAt: r.now(),
			Active:    true,
		},
		opts: opts,
		stop: stop,
	}
	if opts.MaxDurationSeconds > 0 {
		r.session.timer = time.AfterFunc(time.Duration(opts.MaxDurationSeconds*float64(time.Second)), func() {
			r.autoStop(id)
		})
	}

	internal.LogDebug("Recording %s started at %s", id, path)
	return nil
}

func (r *Recorder) autoStop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil || r.session.ID != id {
		return
	}
	rec, err := r.finishLocked()
	if err != nil {
		internal.LogWarn("Recording %s failed to stop at max duration: %v", id, err)
		return
	}
	r.pending = rec
	internal.LogDebug("Recording %s stopped at max duration (%.1fs)", id, rec.DurationSeconds)
}

func (r *Recorder) StopRecording(ctx context.Context) (*internal.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		if r.pending != nil {
			rec := r.pending
			r.pending = nil
			return rec, nil
		}
		return nil, internal.NewContractError(internal.ErrNoActiveRecording, "There is no recording to stop.")
	}
	return r.finishLocked()
}

func (r *Recorder) finishLocked() (*internal.Recording, error) {
	s := r.session
	r.session = nil
	if s.timer != nil {
		s.timer.Stop()
	}

	recorded, err := s.stop()
	if err != nil {
		os.Remove(s.URI)
		return nil, fmt.Errorf("stop recording: %w", err)
	}

	info, err := os.Stat(s.URI)
	if err != nil {
		return nil, fmt.Errorf("recording file missing: %w", err)
	}

	duration := recorded.Seconds()
	if duration <= 0 {
		duration = r.now().Sub(s.StartedAt).Seconds()
	}
	if s.opts.MaxDurationSeconds > 0 && duration > s.opts.MaxDurationSeconds {
		duration = s.opts.MaxDurationSeconds
	}

	return &internal.Recording{
		URI:             s.URI,
		DurationSeconds: duration,
		SizeBytes:       info.Size(),
		Format:          s.opts.Format,
	}, nil
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

func (r *Recorder) ConvertToBase64(uri string) (string, error) {
	data, err := os.ReadFile(pathFromURI(uri))
	if err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Cleanup ends any live session and deletes every transient recording. It is
// safe to call repeatedly.
func (r *Recorder) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		s := r.session
		r.session = nil
		if s.timer != nil {
			s.timer.Stop()
		}
		if _, err := s.stop(); err != nil {
			internal.LogDebug("Stopping recording %s during cleanup: %v", s.ID, err)
		}
	}
	r.pending = nil

	if r.tempDir == "" {
		return nil
	}
	dir := r.tempDir
	r.tempDir = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove recordings: %w", err)
	}
	return nil
}

// TempDir is where recordings of the current run are written, if any
func (r *Recorder) TempDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tempDir
}

func (r *Recorder) ensureTempDir() (string, error) {
	if r.tempDir != "" {
		return r.tempDir, nil
	}
	if r.baseDir != "" {
		if err := os.MkdirAll(r.baseDir, 0700); err != nil {
			return "", fmt.Errorf("create recordings directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.baseDir, "manualqa-rec-")
	if err != nil {
		return "", fmt.Errorf("create recordings directory: %w", err)
	}
	r.tempDir = dir
	return dir, nil
}
