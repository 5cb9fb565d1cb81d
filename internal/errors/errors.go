package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Exit codes for qwtimers
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConfigError  = 2
	ExitListenError  = 3
)

// QWError is the base error type for the qwtimers CLI
type QWError struct {
	Code    int
	Message string
	Cause   error
}

func (e *QWError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *QWError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *QWError) ExitCode() int {
	return e.Code
}

// New creates a new QWError
func New(code int, message string) *QWError {
	return &QWError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a QWError
func Wrap(code int, message string, cause error) *QWError {
	return &QWError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *QWError {
	return Wrap(ExitConfigError, message, cause)
}

// ListenError returns an error for a server that could not bind or serve
func ListenError(addr string, cause error) *QWError {
	return Wrap(ExitListenError, fmt.Sprintf("proxy server on %s failed", addr), cause)
}

// GetExitCode extracts the exit code from an error. A nil error is success.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var qwErr *QWError
	if errors.As(err, &qwErr) {
		return qwErr.ExitCode()
	}
	return ExitGeneralError
}

// Kind classifies a failure talking to the upstream API.
type Kind int

const (
	// KindUpstreamConnection: the upstream session could not be established.
	KindUpstreamConnection Kind = iota + 1
	// KindUpstreamTransport: the exchange broke while sending or receiving.
	KindUpstreamTransport
	// KindUpstreamTimeout: no terminal event within the timeout window.
	KindUpstreamTimeout
	// KindInternal: any other fault while preparing the request.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUpstreamConnection:
		return "upstream_connection"
	case KindUpstreamTransport:
		return "upstream_transport"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// StatusCode maps the kind onto the HTTP status sent to the client.
func (k Kind) StatusCode() int {
	switch k {
	case KindUpstreamConnection, KindUpstreamTransport:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UpstreamError is a proxy failure that is answered with a JSON body.
// Message is client-facing; Cause is only logged.
type UpstreamError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status for this failure
func (e *UpstreamError) StatusCode() int {
	return e.Kind.StatusCode()
}

// Upstream creates a new UpstreamError
func Upstream(kind Kind, message string, cause error) *UpstreamError {
	return &UpstreamError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}
