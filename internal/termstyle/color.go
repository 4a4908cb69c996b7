// SPDX-License-Identifier: MIT
package termstyle

import "github.com/liggitt/tabwriter"

// Reset clears any active ANSI style.
const Reset = "\x1b[0m"

// Semantic styles used by table and status output.
const (
	Healthy = "\x1b[32m"
	Warn    = "\x1b[33m"
	Error   = "\x1b[31m"
	Info    = "\x1b[34m"
)

// Colorize wraps a value in ANSI escapes when color output is enabled.
func Colorize(enabled bool, value, color string) string {
	if !enabled || value == "" || color == "" {
		return value
	}
	// Hide ANSI sequences from tabwriter width calculations so columns align.
	esc := string([]byte{tabwriter.Escape})
	return esc + color + esc + value + esc + Reset + esc
}
