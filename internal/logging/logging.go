package logging

import (
	"io"
	"log/slog"
	"os"
)

// level is shared by every handler Setup builds, so the verbosity can
// change without rebuilding loggers handed out earlier.
var level = new(slog.LevelVar)

// Logger is the process-wide structured logger. Setup replaces it and
// installs it as the slog default.
var Logger = slog.New(newHandler(os.Stderr, false))

func newHandler(w io.Writer, jsonOutput bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup configures the process logger from the CLI flags. A nil writer
// means stderr. Components built without an explicit logger fall back to
// slog.Default and so follow the same settings.
func Setup(verbose bool, jsonOutput bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}

	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	Logger = slog.New(newHandler(w, jsonOutput))
	slog.SetDefault(Logger)
}

// Component returns the process logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger.Warn(msg, args...) }
func Error(msg string, args ...any) { Logger.Error(msg, args...) }
