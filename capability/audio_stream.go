package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"manualqa/internal"
)

// Microphone is a host-provided audio source on touch and browser runtimes
type Microphone interface {
	RequestPermission(ctx context.Context) (internal.Permission, error)
	// Open starts streaming 16-bit little-endian PCM until the reader is closed
	Open(ctx context.Context, opts internal.RecordingOptions) (io.ReadCloser, error)
}

// streamBackend writes a host PCM stream to a WAV file
type streamBackend struct {
	mic Microphone
}

func (b *streamBackend) permission(ctx context.Context) (internal.Permission, error) {
	return b.mic.RequestPermission(ctx)
}

func (b *streamBackend) begin(ctx context.Context, path string, opts internal.RecordingOptions) (func() (time.Duration, error), error) {
	perm, err := b.mic.RequestPermission(ctx)
	if err != nil {
		return nil, err
	}
	if perm != internal.PermissionGranted {
		return nil, internal.NewConstraintError("permission", "Microphone access was denied.", "microphone permission denied")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	if err := writeWAVHeader(f, opts.SampleRate, opts.Channels, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write wav header: %w", err)
	}

	src, err := b.mic.Open(ctx, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	var written atomic.Int64
	done := make(chan error, 1)
	go func() {
		n, err := io.Copy(f, src)
		written.Store(n)
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			err = nil
		}
		done <- err
	}()

	stop := func() (time.Duration, error) {
		src.Close()
		copyErr := <-done
		dataLen := written.Load()

		if err := finalizeWAV(f, opts.SampleRate, opts.Channels, dataLen); err != nil {
			f.Close()
			return 0, fmt.Errorf("finalize wav: %w", err)
		}
		if err := f.Close(); err != nil {
			return 0, err
		}
		if copyErr != nil {
			return 0, fmt.Errorf("audio stream failed: %w", copyErr)
		}
		seconds := pcmDuration(dataLen, opts.SampleRate, opts.Channels)
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return stop, nil
}
