// Package cliout carries ru's human-readable output layer: ANSI styling,
// table column alignment, and the fatal/warnf/infof/successf message
// helpers, adapted from the teacher's util.go. Structured output goes
// through internal/state.Envelope instead; this package is only for the
// non-json terminal rendering path.
package cliout

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

var ansiStripRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

var ansiEnabled = initAnsiEnabled()

func initAnsiEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("RU_FORCE_COLOR") != "" {
		return true
	}
	return IsInteractive(os.Stdout)
}

// IsInteractive reports whether f is a terminal (spec §4.2's "interactive
// session" gate for fork_clean's confirmation prompt).
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func ansi(codes ...string) string {
	if !ansiEnabled || len(codes) == 0 {
		return ""
	}
	return "\x1b[" + strings.Join(codes, ";") + "m"
}

func colorize(s string, codes ...string) string {
	if !ansiEnabled {
		return s
	}
	return ansi(codes...) + s + ansi("0")
}

func StyleHeading(s string) string { return colorize(s, "1", "36") }
func StyleDim(s string) string     { return colorize(s, "90") }
func StyleInfo(s string) string    { return colorize(s, "36") }
func StyleSuccess(s string) string { return colorize(s, "32") }
func StyleWarn(s string) string    { return colorize(s, "33") }
func StyleError(s string) string   { return colorize(s, "31") }

// Fatal prints err in red to stderr and exits 1. Callers that need a
// specific ruerr exit code should print and os.Exit themselves instead.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, StyleError("error: ")+err.Error())
	os.Exit(1)
}

func Warnf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, StyleWarn("warning: ")+fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	fmt.Fprintln(os.Stdout, StyleInfo("==> ")+fmt.Sprintf(format, args...))
}

func Successf(format string, args ...any) {
	fmt.Fprintln(os.Stdout, StyleSuccess("==> ")+fmt.Sprintf(format, args...))
}

// DisplayWidth returns s's terminal column width with ANSI escapes
// stripped, using go-runewidth for East-Asian-width-aware measurement
// rather than the hand-rolled table the teacher used for the same job.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(ansiStripRe.ReplaceAllString(s, ""))
}

// PadRight pads s with spaces (after its ANSI-stripped visible width) to
// width columns, for per-repo summary tables (spec SPEC_FULL.md domain
// stack: fork-sync/fork-clean column alignment).
func PadRight(s string, width int) string {
	visible := DisplayWidth(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// Table renders rows of equal-length string slices as space-padded,
// left-aligned columns.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = DisplayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				continue
			}
			if w := DisplayWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(PadRight(cell, widths[i]))
		}
		b.WriteByte('\n')
	}
	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// promptLine reads one line from stdin, trimmed of its trailing newline.
func promptLine() (string, bool) {
	var line string
	_, err := fmt.Scanln(&line)
	return line, err == nil
}

// ConfirmYN prompts for a y/n confirmation (spec §4.2: fork_clean without
// --force in an interactive session). Returns (confirmed, ok); ok=false
// means the session is non-interactive and the caller must refuse rather
// than guess.
func ConfirmYN(prompt string, defaultYes bool) (bool, bool) {
	if !IsInteractive(os.Stdin) {
		return false, false
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "Confirm"
	}
	def := "N"
	if defaultYes {
		def = "Y"
	}
	for {
		fmt.Fprintf(os.Stdout, "%s [y/%s]: ", prompt, def)
		line, ok := promptLine()
		if !ok {
			return false, false
		}
		line = strings.TrimSpace(strings.ToLower(line))
		if line == "" {
			return defaultYes, true
		}
		switch line {
		case "y", "yes":
			return true, true
		case "n", "no":
			return false, true
		default:
			fmt.Fprintln(os.Stdout, StyleDim("please answer y or n"))
		}
	}
}
