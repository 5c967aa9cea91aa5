package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// statusGlyph maps a todo status to a short marker for list output.
func statusGlyph(status string) string {
	switch status {
	case "done":
		return colorize(colorGreen, "[x]")
	case "in-progress":
		return colorize(colorCyan, "[~]")
	default:
		return "[ ]"
	}
}

// priorityLabel colors a priority for list output.
func priorityLabel(priority string) string {
	switch priority {
	case "high":
		return colorize(colorRed, priority)
	case "low":
		return colorize(colorYellow, priority)
	default:
		return priority
	}
}
