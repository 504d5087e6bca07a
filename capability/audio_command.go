package capability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"manualqa/internal"
)

// recorderStopGrace is how long a recorder gets to flush after an interrupt
const recorderStopGrace = 5 * time.Second

// commandBackend records by running an external recorder process. The
// command template may use {output}, {rate} and {channels}.
type commandBackend struct {
	template string
	lookPath func(string) (string, error)
}

func newCommandBackend(template string) *commandBackend {
	return &commandBackend{template: template, lookPath: exec.LookPath}
}

// knownRecorders are probed in order when no template is configured
var knownRecorders = []struct {
	binary string
	args   []string
}{
	{"arecord", []string{"-q", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-t", "wav", "{output}"}},
	{"rec", []string{"-q", "-r", "{rate}", "-c", "{channels}", "-b", "16", "{output}"}},
	{"ffmpeg", ffmpegArgs()},
}

func ffmpegArgs() []string {
	input := []string{"-f", "alsa", "-i", "default"}
	switch runtime.GOOS {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "windows":
		input = []string{"-f", "dshow", "-i", "audio=default"}
	}
	args := append([]string{"-loglevel", "error", "-nostdin"}, input...)
	return append(args, "-ac", "{channels}", "-ar", "{rate}", "-sample_fmt", "s16", "-y", "{output}")
}

// resolve returns the recorder binary and argument template
func (b *commandBackend) resolve() (string, []string, error) {
	if fields := strings.Fields(b.template); len(fields) > 0 {
		path, err := b.lookPath(fields[0])
		if err != nil {
			return "", nil, fmt.Errorf("recorder %q not found: %w", fields[0], err)
		}
		return path, fields[1:], nil
	}

	for _, rec := range knownRecorders {
		if path, err := b.lookPath(rec.binary); err == nil {
			return path, rec.args, nil
		}
	}
	return "", nil, errors.New("no audio recorder found (install arecord, sox or ffmpeg, or set recorder in config)")
}

func (b *commandBackend) permission(ctx context.Context) (internal.Permission, error) {
	if _, _, err := b.resolve(); err != nil {
		internal.LogDebug("Microphone permission denied: %v", err)
		return internal.PermissionDenied, nil
	}
	return internal.PermissionGranted, nil
}

func (b *commandBackend) begin(ctx context.Context, path string, opts internal.RecordingOptions) (func() (time.Duration, error), error) {
	binary, argTemplate, err := b.resolve()
	if err != nil {
		return nil, err
	}

	args := expandRecorderArgs(argTemplate, path, opts)
	// not CommandContext: the session outlives the call that started it
	cmd := exec.Command(binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	internal.LogDebug("Recorder started: %s %s", binary, strings.Join(args, " "))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	stop := func() (time.Duration, error) {
		select {
		case err := <-done:
			// exited on its own before stop
			if err != nil {
				return 0, fmt.Errorf("recorder exited early: %w: %s", err, strings.TrimSpace(stderr.String()))
			}
			return 0, nil
		default:
		}

		if runtime.GOOS == "windows" {
			cmd.Process.Kill()
		} else {
			cmd.Process.Signal(os.Interrupt)
		}

		select {
		case err := <-done:
			if err != nil && !interruptedExit(err) {
				return 0, fmt.Errorf("recorder failed: %w: %s", err, strings.TrimSpace(stderr.String()))
			}
		case <-time.After(recorderStopGrace):
			cmd.Process.Kill()
			<-done
			return 0, errors.New("recorder did not stop within grace period")
		}
		return 0, nil
	}
	return stop, nil
}

// interruptedExit reports whether err is the recorder reacting to our interrupt
func interruptedExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// 130 = 128 + SIGINT; ffmpeg exits 255 on interrupt
	code := exitErr.ExitCode()
	return code == -1 || code == 1 || code == 130 || code == 255
}

func expandRecorderArgs(template []string, output string, opts internal.RecordingOptions) []string {
	replacer := strings.NewReplacer(
		"{output}", output,
		"{rate}", strconv.Itoa(opts.SampleRate),
		"{channels}", strconv.Itoa(opts.Channels),
	)
	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = replacer.Replace(arg)
	}
	return args
}
