package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/promptbench/internal/metrics"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/spinner"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const previewWidth = 60

var printer = message.NewPrinter(language.English)

func printEvent(w io.Writer, evt models.Event) {
	if evt.Index == nil {
		return
	}
	switch evt.Status {
	case models.StatusRunning:
		fmt.Fprintf(w, "  [%d] %s running\n", *evt.Index, evt.Model) //nolint:errcheck
	case models.StatusCompleted:
		fmt.Fprintf(w, "  [%d] %s completed in %s\n", *evt.Index, evt.Model, formatLatency(evt.LatencyMs)) //nolint:errcheck
	case models.StatusFailed:
		fmt.Fprintf(w, "  [%d] %s failed: %s\n", *evt.Index, evt.Model, evt.Error) //nolint:errcheck
	}
}

func printResults(w io.Writer, run *models.Run) {
	const (
		colStatus  = 11
		colTokens  = 16
		colLatency = 10
	)

	modelWidth := len("Model")
	for _, r := range run.Results {
		modelWidth = max(modelWidth, runewidth.StringWidth(r.Model))
	}
	modelWidth += 2
	totalWidth := modelWidth + colStatus + colTokens + colLatency + previewWidth

	fmt.Fprintln(w) //nolint:errcheck
	fmt.Fprintf(w, "%s%s%s%s%s\n", //nolint:errcheck
		padRight("Model", modelWidth),
		padRight("Status", colStatus),
		padRight("Tokens in/out", colTokens),
		padRight("Latency", colLatency),
		"Output")
	fmt.Fprintf(w, "%s\n", strings.Repeat("─", totalWidth)) //nolint:errcheck

	for _, r := range run.Results {
		tokens, latency, preview := "-", "-", r.Error
		if r.Status == models.StatusCompleted {
			tokens = printer.Sprintf("%d/%d", r.TokensIn, r.TokensOut)
			latency = formatLatency(r.LatencyMs)
			preview = r.Output
		}
		fmt.Fprintf(w, "%s%s%s%s%s\n", //nolint:errcheck
			padRight(r.Model, modelWidth),
			padRight(string(r.Status), colStatus),
			padRight(tokens, colTokens),
			padRight(latency, colLatency),
			truncate(oneLine(preview), previewWidth))
	}

	sum := metrics.Summarize(run)
	fmt.Fprintf(w, "\n%d completed, %d failed", sum.Completed, sum.Failed) //nolint:errcheck
	if sum.Completed > 0 {
		fmt.Fprintf(w, " · %s tokens · median %s", //nolint:errcheck
			printer.Sprintf("%d/%d", sum.TokensIn, sum.TokensOut),
			formatLatency(int64(sum.MedianLatencyMs)))
		if sum.Cost != nil {
			fmt.Fprintf(w, " · $%.4f", *sum.Cost) //nolint:errcheck
		}
		if sum.Completed > 1 {
			fmt.Fprintf(w, " · fastest %s", run.Results[sum.Fastest].Model) //nolint:errcheck
		}
	}
	fmt.Fprintln(w) //nolint:errcheck
}

func printVerdicts(w io.Writer, verdicts []models.Verdict) {
	if len(verdicts) == 0 {
		fmt.Fprintln(w, "\nNo completed results to validate.") //nolint:errcheck
		return
	}

	modelWidth := len("Model")
	for _, v := range verdicts {
		modelWidth = max(modelWidth, runewidth.StringWidth(v.TargetModel))
	}
	modelWidth += 2

	fmt.Fprintln(w) //nolint:errcheck
	fmt.Fprintf(w, "%s%s%s%s\n", padRight("Model", modelWidth), padRight("Result", 8), padRight("Score", 7), "Feedback") //nolint:errcheck
	fmt.Fprintf(w, "%s\n", strings.Repeat("─", modelWidth+15+previewWidth))                                            //nolint:errcheck
	for _, v := range verdicts {
		result := "✅ pass"
		if !v.Passed {
			result = "❌ fail"
		}
		fmt.Fprintf(w, "%s%s%s%s\n", //nolint:errcheck
			padRight(v.TargetModel, modelWidth),
			padRight(result, 8),
			padRight(printer.Sprintf("%.1f", v.Score), 7),
			truncate(oneLine(v.Feedback), previewWidth))
		for _, s := range v.Suggestions {
			fmt.Fprintf(w, "%s  - %s\n", strings.Repeat(" ", modelWidth), s) //nolint:errcheck
		}
	}

	sum := metrics.SummarizeVerdicts(verdicts)
	fmt.Fprintf(w, "\n%d/%d passed (%.0f%%) · mean score %.1f ± %.1f\n", //nolint:errcheck
		sum.Passed, sum.Graded, sum.PassRate*100, sum.MeanScore, sum.ScoreStdDev)
}

// startSpinner animates message on w when w is a terminal. The returned
// function stops it and is safe to call when nothing was started.
func startSpinner(w io.Writer, message string) func() {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	s := spinner.Start(w, message)
	return s.Stop
}

func formatLatency(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// padRight pads s with spaces to the given display width, accounting for
// wide characters such as emoji.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
