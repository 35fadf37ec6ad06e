package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	colorRed    = color.New(color.FgRed)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
	colorDim    = color.New(color.Faint)
	colorBold   = color.New(color.Bold)
)

// colorize applies c unless --no-color is set. fatih/color also drops
// escapes when stdout is not a terminal.
func colorize(c *color.Color, text string) string {
	if noColor {
		return text
	}
	return c.Sprint(text)
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printTutor writes one tutor reply with its routing path as a dim prefix.
func printTutor(w io.Writer, path, response string) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorDim, "["+path+"]"), colorize(colorCyan, "mentor:"))
	fmt.Fprintln(w, response)
}
