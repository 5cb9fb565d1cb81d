// Package errors provides typed errors for qwtimers.
//
// # CLI Errors
//
// QWError wraps an error with a process exit code:
//
//	type QWError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// Defined exit codes:
//
//	ExitSuccess      = 0 // Success
//	ExitGeneralError = 1 // General/unknown errors
//	ExitConfigError  = 2 // Configuration error
//	ExitListenError  = 3 // Proxy server failed to bind or serve
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
//
// # Upstream Failures
//
// UpstreamError classifies failures of a proxied exchange. Each Kind maps
// onto the HTTP status written back to the browser:
//
//	KindUpstreamConnection // 502, session could not be opened
//	KindUpstreamTransport  // 502, exchange broke mid-flight
//	KindUpstreamTimeout    // 504, watchdog expired
//	KindInternal           // 500, request could not be prepared
package errors
