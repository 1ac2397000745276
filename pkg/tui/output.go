// Package tui renders measurement results and batch progress for the
// terminal.
package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/tracesim/pkg/measure"
	"github.com/logflow/tracesim/pkg/resultstore"
	"github.com/logflow/tracesim/pkg/runner"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// MeasureReport describes one finished comparison.
type MeasureReport struct {
	RealPath string
	SimPath  string
	Metrics  measure.Metrics
	Traces   int
	Duration time.Duration
}

// PrintMeasure prints the four summaries of one comparison.
func PrintMeasure(w io.Writer, r *MeasureReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ MEASUREMENT COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Real:"), titleStyle.Render(r.RealPath))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Sim: "), titleStyle.Render(r.SimPath))
	fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("Traces:"), titleStyle.Render(fmt.Sprint(r.Traces)),
		mutedStyle.Render("("+formatDuration(r.Duration)+")"))
	fmt.Fprintln(w)
	printMetric(w, "Jaro-Winkler", r.Metrics.JaroWinkler)
	printMetric(w, "Damerau-Levenshtein", r.Metrics.DL)
	printMetric(w, "DL time", r.Metrics.DLTime)
	fmt.Fprintf(w, "  %-22s %s\n", mutedStyle.Render("MAE"), accentStyle.Render(formatSeconds(r.Metrics.MAE)))
	fmt.Fprintln(w)
}

func printMetric(w io.Writer, name string, v float64) {
	fmt.Fprintf(w, "  %-22s %s\n", mutedStyle.Render(name), accentStyle.Render(fmt.Sprintf("%.4f", v)))
}

// PrintBatch prints per-run means and the mean over runs.
func PrintBatch(w io.Writer, batchID string, results []*resultstore.RunResult, s runner.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", titleStyle.Render("BATCH"), mutedStyle.Render(batchID))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("%-5s %-8s %-8s %-8s %-12s %s", "run", "jw", "dl", "dl_time", "mae", "sim")))
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(w, "  %-5d %-8.4f %-8.4f %-8.4f %-12s %s\n",
			r.Run, r.JWMean, r.DLMean, r.DLTime, formatSeconds(r.MAE), mutedStyle.Render(r.SimPath))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Runs:"), titleStyle.Render(fmt.Sprint(len(s.JaroWinkler.Runs))))
	printMetric(w, "Jaro-Winkler", s.JaroWinkler.Overall)
	printMetric(w, "Damerau-Levenshtein", s.DL.Overall)
	printMetric(w, "DL time", s.DLTime.Overall)
	fmt.Fprintf(w, "  %-22s %s\n", mutedStyle.Render("MAE"), accentStyle.Render(formatSeconds(s.MAE.Overall)))
	fmt.Fprintln(w)
}

// ShowProgress creates a progress bar counting finished runs.
func ShowProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// formatSeconds renders an elapsed-time error given in seconds.
func formatSeconds(s float64) string {
	if s < 60 {
		return fmt.Sprintf("%.1fs", s)
	}
	return formatDuration(time.Duration(s * float64(time.Second)))
}
