package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// User-facing output functions with status prefixes.
// These write to stdout/stderr directly for CLI output,
// separate from the structured debug logging.

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Destinations for user output; swapped in tests.
var (
	userOut io.Writer = os.Stdout
	userErr io.Writer = os.Stderr
)

func userPrint(w io.Writer, style lipgloss.Style, prefix, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", style.Render(prefix), fmt.Sprintf(format, args...))
}

// UserInfo prints an info message to stdout.
func UserInfo(format string, args ...interface{}) {
	userPrint(userOut, infoStyle, "ℹ", format, args...)
}

// UserSuccess prints a success message to stdout.
func UserSuccess(format string, args ...interface{}) {
	userPrint(userOut, successStyle, "✓", format, args...)
}

// UserWarning prints a warning message to stderr.
func UserWarning(format string, args ...interface{}) {
	userPrint(userErr, warningStyle, "⚠", format, args...)
}

// UserError prints an error message to stderr.
func UserError(format string, args ...interface{}) {
	userPrint(userErr, errorStyle, "✗", format, args...)
}
