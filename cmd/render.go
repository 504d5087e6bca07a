package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"manualqa/internal"
	"manualqa/services"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	quoteStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

const wrapWidth = 80

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// renderMarkdown renders md for a terminal, or returns it unchanged when
// styling is off or fails
func renderMarkdown(md string, styled bool) string {
	if !styled {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		internal.LogDebug("Markdown renderer unavailable: %v", err)
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		internal.LogDebug("Markdown render failed: %v", err)
		return md
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// printTranscript echoes what the speech recognizer heard
func printTranscript(w io.Writer, transcript string, styled bool) {
	if !styled {
		fmt.Fprintf(w, "You asked: %s\n\n", transcript)
		return
	}
	fmt.Fprintln(w, quoteStyle.Width(wrapWidth-4).Render(dimStyle.Render("You asked: ")+transcript))
	fmt.Fprintln(w)
}

func printAnswer(w io.Writer, answer string, sources []services.Source, styled bool) {
	fmt.Fprint(w, renderMarkdown(answer, styled))
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Sources"))
	for _, s := range sources {
		fmt.Fprintln(w, sourceStyle.Render(formatSource(s)))
	}
}

func formatSource(s services.Source) string {
	name := s.ManualTitle
	if name == "" {
		name = s.ManualID
	}
	if name == "" {
		name = "manual"
	}
	line := name
	if s.Page > 0 {
		line = fmt.Sprintf("%s, p. %d", name, s.Page)
	}
	if s.Excerpt != "" {
		line += ": " + truncate(s.Excerpt, 70)
	}
	return line
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func printManuals(w io.Writer, manuals []services.Manual) {
	if len(manuals) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No manuals yet. Upload one with `manualqa manuals upload <file>`."))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-14s %-34s %9s %6s  %s", "ID", "TITLE", "SIZE", "PAGES", "UPLOADED")))
	for _, m := range manuals {
		fmt.Fprintf(w, "%-14s %-34s %9s %6s  %s\n",
			m.ID,
			truncate(m.Title, 34),
			internal.FormatBytes(m.SizeBytes),
			pageCount(m.PageCount),
			formatDate(m.UploadedAt))
	}
}

func printManual(w io.Writer, m *services.Manual) {
	fmt.Fprintln(w, titleStyle.Render(m.Title))
	rows := [][2]string{
		{"ID", m.ID},
		{"File", m.FileName},
		{"Type", m.MIMEType},
		{"Size", internal.FormatBytes(m.SizeBytes)},
		{"Pages", pageCount(m.PageCount)},
		{"Status", m.Status},
		{"Uploaded", formatDate(m.UploadedAt)},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%-9s", row[0])), row[1])
	}
}

func pageCount(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printUsage(w io.Writer, u *services.Usage) {
	fmt.Fprintln(w, titleStyle.Render("Usage"))

	queries := fmt.Sprintf("%d used", u.QueriesToday)
	if remaining := u.QueriesRemaining(); remaining >= 0 {
		queries = fmt.Sprintf("%d of %d used, %d left", u.QueriesToday, u.DailyLimit, remaining)
		if remaining == 0 {
			queries = warnStyle.Render(queries)
		}
	}
	fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Queries today "), queries)

	storage := internal.FormatBytes(u.StorageBytes)
	if u.StorageLimitBytes > 0 {
		storage = fmt.Sprintf("%s of %s (%.0f%%)", storage, internal.FormatBytes(u.StorageLimitBytes), u.StoragePercent())
	}
	fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Storage       "), storage)
	fmt.Fprintf(w, "  %s %d\n", dimStyle.Render("Manuals       "), u.ManualsStored)
	if !u.ResetsAt.IsZero() {
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Resets        "), formatDate(u.ResetsAt))
	}
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Fprintln(w, okStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// reportError prints what the user should see. Classified failures show
// their user message and suggestion; the technical detail goes to the log.
func reportError(w io.Writer, err error) {
	var ce *internal.ClassifiedError
	if errors.As(err, &ce) {
		if config != nil && (config.LogFile != "" || config.EnableDebug) {
			internal.LogClassifiedError(ce)
		}
		fmt.Fprintln(w, errorStyle.Render("Error: ")+ce.UserMessage)
		if ce.Suggestion != "" {
			fmt.Fprintln(w, dimStyle.Render("  "+ce.Suggestion))
		}
		if errors.Is(err, internal.ErrAuthRequired) {
			fmt.Fprintln(w, dimStyle.Render("  Run `manualqa login` to sign in."))
		}
		return
	}

	var ve *internal.ValidationError
	if errors.As(err, &ve) {
		internal.LogValidationError(ve)
		fmt.Fprintln(w, errorStyle.Render("Error: ")+ve.Error())
		if ve.Suggestion != "" {
			fmt.Fprintln(w, dimStyle.Render("  "+ve.Suggestion))
		}
		return
	}

	internal.LogDebug("Command failed: %v", err)
	fmt.Fprintln(w, errorStyle.Render("Error: ")+err.Error())
}
