// Package logging provides logging utilities for qwtimers.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("proxying request", "method", r.Method, "path", path)
//	logging.Warn("diagnostic log rotation failed", "error", err)
//
// The proxy takes an injected *slog.Logger; the CLI passes
// Component("proxy") so its records carry component=proxy. Verbosity is
// held in one slog.LevelVar, so loggers handed out before Setup follow it.
//
// # User Output
//
// User-facing messages are formatted with status indicators, colored with
// lipgloss when the output is a terminal:
//
//	logging.UserInfo("Proxy listening on %s", addr)
//	logging.UserSuccess("Configuration is valid")
//	logging.UserWarning("Static directory %s does not exist", dir)
//	logging.UserError("Failed to start proxy: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
