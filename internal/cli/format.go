package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/marmos91/dittorepo/pkg/relocate"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func printSection(w io.Writer, title string) {
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
}

func printSuccess(w io.Writer, msg string) {
	_, _ = successColor.Fprintf(w, "✓ %s\n", msg)
}

func printWarning(w io.Writer, msg string) {
	_, _ = warningColor.Fprintf(w, "⚠ %s\n", msg)
}

func printError(w io.Writer, msg string) {
	_, _ = errorColor.Fprintf(w, "✗ %s\n", msg)
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, pluralForm)
}

// printStatus renders a relocation outcome: every recorded entry, then a summary line.
func printStatus(w io.Writer, cfg relocate.MoveConfig, status *relocate.Status) {
	title := "Move"
	if cfg.Copy() {
		title = "Copy"
	}
	if cfg.IsDryRun() {
		title += " (dry run)"
	}
	printSection(w, title)

	for _, e := range status.Entries() {
		msg := fmt.Sprintf("%s [%s]", e.Message, e.Code)
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
		if e.Level == relocate.LevelError {
			printError(w, msg)
		} else {
			printWarning(w, msg)
		}
	}

	verb := "moved"
	if cfg.Copy() {
		verb = "copied"
	}
	if cfg.IsDryRun() {
		verb = "would be " + verb
	}
	summary := fmt.Sprintf("%s and %s %s",
		plural(status.MovedFiles(), "file", "files"),
		plural(status.MovedFolders(), "folder", "folders"), verb)

	switch {
	case status.HasErrors():
		printError(w, summary+fmt.Sprintf(", %s", plural(len(status.Errors()), "error", "errors")))
	case status.HasWarnings():
		printWarning(w, summary+fmt.Sprintf(", %s", plural(len(status.Warnings()), "warning", "warnings")))
	default:
		printSuccess(w, summary)
	}
	if status.Cancelled() {
		printWarning(w, "stopped at the first problem (fail-fast)")
	}
	_, _ = dimColor.Fprintf(w, "  request %s\n", status.ID())
}
