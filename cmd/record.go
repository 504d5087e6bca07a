package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"manualqa/internal"
	"manualqa/utils"
)

// DefaultVoiceSeconds caps a voice question when no duration is given
const DefaultVoiceSeconds = 60

var (
	recordDuration float64
	recordOutput   string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a test clip with the configured microphone",
	Long: `Record a short clip to check that audio capture works. The clip is
copied to --output when given; otherwise it is discarded on exit.

Examples:
  manualqa record --duration 5
  manualqa record --output clip.wav`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		rec, err := captureClip(cmd.Context(), a.Resolver.AudioCapture(), recordDuration, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %.1fs, %s, %s\n", dimStyle.Render("Recorded"), rec.DurationSeconds, internal.FormatBytes(rec.SizeBytes), rec.Format)

		if recordOutput != "" {
			if err := copyRecording(rec.URI, recordOutput); err != nil {
				return err
			}
			printSuccess(w, "Saved %s", recordOutput)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().Float64Var(&recordDuration, "duration", 10, "Stop automatically after this many seconds")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Keep the clip at this path")
}

type audioRecorder interface {
	RequestPermission(ctx context.Context) (internal.Permission, error)
	StartRecording(ctx context.Context, opts internal.RecordingOptions) error
	StopRecording(ctx context.Context) (*internal.Recording, error)
	IsRecording() bool
}

// captureClip records until Enter is pressed, maxSeconds pass or ctx ends
func captureClip(ctx context.Context, audio audioRecorder, maxSeconds float64, in io.Reader, out io.Writer) (*internal.Recording, error) {
	perm, err := audio.RequestPermission(ctx)
	if err != nil {
		return nil, err
	}
	if perm != internal.PermissionGranted {
		return nil, internal.NewConstraintError("permission",
			"Microphone access was denied.",
			"audio capture permission denied")
	}

	if err := audio.StartRecording(ctx, internal.RecordingOptions{MaxDurationSeconds: maxSeconds}); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "%s press Enter to stop (max %.0fs)\n", warnStyle.Render("● Recording,"), maxSeconds)

	enter := make(chan struct{}, 1)
	go func() {
		bufio.NewReader(in).ReadString('\n')
		enter <- struct{}{}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-enter:
			break wait
		case <-ticker.C:
			if !audio.IsRecording() {
				break wait
			}
		}
	}

	// a cancelled ctx must not stop us releasing the microphone
	return audio.StopRecording(context.WithoutCancel(ctx))
}

func copyRecording(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	return writeOutputFile(dst, data)
}

// writeOutputFile writes a file the user asked for, refusing directories
func writeOutputFile(path string, data []byte) error {
	fileOps := utils.NewFileOperations()
	path = filepath.Clean(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return internal.NewValidationErrorWithValue("output", "output path is a directory", path).
			WithSuggestion("Give a file name, e.g. page-1.png")
	}
	if err := fileOps.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
