package utils

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"

	"manualqa/internal"
)

// UploadProgress displays the progress of a request body as it is sent
type UploadProgress struct {
	bar       *pb.ProgressBar
	quiet     bool
	startTime time.Time
	total     int64
	sent      atomic.Int64
}

// TransferSummary contains final upload statistics
type TransferSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewUploadProgress creates a progress bar for total bytes written to w.
// In quiet mode nothing is drawn but bytes are still counted.
func NewUploadProgress(total int64, label string, w io.Writer, quiet bool) *UploadProgress {
	p := &UploadProgress{
		quiet:     quiet,
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }}`
		bar := pb.New64(total).SetTemplateString(tmpl).SetWriter(w)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", label+": ")
		p.bar = bar.Start()
	}

	return p
}

// Wrap returns a reader that reports progress while r is consumed. Each call
// restarts the count, so a retried request body is not counted twice.
func (p *UploadProgress) Wrap(r io.Reader, size int64) io.Reader {
	p.sent.Store(0)
	if size > 0 && size != p.total {
		p.total = size
		if p.bar != nil {
			p.bar.SetTotal(size)
		}
	}
	if p.bar != nil {
		p.bar.SetCurrent(0)
	}
	return &countingReader{reader: r, progress: p}
}

// Finish completes the progress bar and returns the summary
func (p *UploadProgress) Finish() *TransferSummary {
	if p.bar != nil {
		p.bar.Finish()
	}

	elapsed := time.Since(p.startTime)
	sent := p.sent.Load()
	summary := &TransferSummary{
		TotalBytes: sent,
		TotalTime:  elapsed,
	}
	if elapsed > 0 {
		summary.AverageSpeed = float64(sent) / elapsed.Seconds()
	}

	internal.LogDebug("Upload finished: %s in %v", internal.FormatBytes(sent), elapsed.Round(time.Millisecond))
	return summary
}

// Sent returns the bytes read from the current wrapped body
func (p *UploadProgress) Sent() int64 {
	return p.sent.Load()
}

// IsQuiet returns whether the bar is hidden
func (p *UploadProgress) IsQuiet() bool {
	return p.quiet
}

type countingReader struct {
	reader   io.Reader
	progress *UploadProgress
}

func (c *countingReader) Read(buf []byte) (int, error) {
	n, err := c.reader.Read(buf)
	if n > 0 {
		sent := c.progress.sent.Add(int64(n))
		if c.progress.bar != nil {
			c.progress.bar.SetCurrent(sent)
		}
	}
	return n, err
}

// String renders the summary for terminal output
func (s *TransferSummary) String() string {
	return fmt.Sprintf("%s sent in %v (%s/s)",
		internal.FormatBytes(s.TotalBytes),
		s.TotalTime.Round(time.Millisecond),
		internal.FormatBytes(int64(s.AverageSpeed)))
}
