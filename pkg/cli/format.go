// Package cli provides shared formatting helpers for the vnetorch tools.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string { return paint("32", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("33", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("31", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("1", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("2", s) }

// State colours a route or session state: installed and up states green,
// withdrawn and down states red, anything else yellow.
func State(s string) string {
	switch strings.ToLower(s) {
	case "active", "group", "single", "up":
		return Green(s)
	case "inactive", "uninstalled", "down":
		return Red(s)
	default:
		return Yellow(s)
	}
}

// List joins items with commas, or returns "-" for an empty list.
func List(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

// DotPad pads name with dots to the given width.
// Example: DotPad("ordered_ecmp", 16) → "ordered_ecmp ..."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
