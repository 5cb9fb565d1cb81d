package proxy

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tanelvakker/qwtimers/internal/config"
	"github.com/tanelvakker/qwtimers/internal/session"
)

// Config holds proxy configuration
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// TargetURL is the upstream API URL (e.g., "https://app.qilowatt.it").
	// Only the scheme and host are used.
	TargetURL string

	// LoginPath is the path of the login endpoint, identical on both sides
	LoginPath string

	// LoginTimeout bounds the whole login exchange, from dialing the
	// upstream session to reading the last body byte
	LoginTimeout time.Duration

	// MaxLoginBodyBytes caps the buffered upstream login response
	MaxLoginBodyBytes int64

	// MaxFormBytes caps the client's login form body
	MaxFormBytes int64

	// Mounts are the path prefixes forwarded to the upstream
	Mounts []string

	// ProtectedPrefixes are the client paths whose Authorization header
	// is forwarded upstream. Every other forwarded path has it removed.
	ProtectedPrefixes []string

	// StaticDir serves the browser client for unmatched paths (empty = off)
	StaticDir string

	// ReadHeaderTimeout and IdleTimeout bound idle inbound connections
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// ReadTimeout and WriteTimeout cap a whole inbound request or response
	// (0 = no limit). Forwarded bodies stream, so a cap also cuts long
	// transfers.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DiagnosticLogPath is the JSON-lines request log (empty = off)
	DiagnosticLogPath string

	// DiagnosticMaxSize rotates the diagnostic log at this size (0 = never)
	DiagnosticMaxSize int64

	// Store holds the upstream session cookies. A new empty store is
	// created when nil.
	Store *session.Store

	// Logger for proxy operations
	Logger *slog.Logger

	// Transport is an optional HTTP transport for the generic forwarder.
	// Used in tests to supply a TLS-aware transport for test servers.
	Transport http.RoundTripper

	// LoginTLSConfig is an optional TLS configuration for the login
	// session. Used in tests to trust the test server certificate.
	LoginTLSConfig *tls.Config
}

// FromFile maps a loaded configuration file onto a proxy configuration
func FromFile(fc *config.Config, logger *slog.Logger) *Config {
	return &Config{
		ListenAddr:        fc.Listen,
		TargetURL:         fc.Upstream.Target,
		LoginPath:         fc.Upstream.LoginPath,
		LoginTimeout:      fc.Upstream.LoginTimeout.Duration,
		MaxLoginBodyBytes: fc.Upstream.MaxLoginBody,
		MaxFormBytes:      fc.Upstream.MaxFormBody,
		Mounts:            fc.Routing.Mounts,
		ProtectedPrefixes: fc.Routing.ProtectedPrefixes,
		StaticDir:         fc.StaticDir,
		ReadHeaderTimeout: fc.Server.ReadHeaderTimeout.Duration,
		ReadTimeout:       fc.Server.ReadTimeout.Duration,
		WriteTimeout:      fc.Server.WriteTimeout.Duration,
		IdleTimeout:       fc.Server.IdleTimeout.Duration,
		DiagnosticLogPath: fc.Diagnostics.LogPath,
		DiagnosticMaxSize: fc.Diagnostics.MaxSize,
		Logger:            logger,
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.LoginPath == "" {
		cfg.LoginPath = config.DefaultLoginPath
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = config.DefaultLoginTimeout
	}
	if cfg.MaxLoginBodyBytes <= 0 {
		cfg.MaxLoginBodyBytes = config.DefaultMaxLoginBody
	}
	if cfg.MaxFormBytes <= 0 {
		cfg.MaxFormBytes = config.DefaultMaxFormBody
	}
	if cfg.Mounts == nil {
		cfg.Mounts = []string{"/api", "/devices"}
	}
	if cfg.ProtectedPrefixes == nil {
		cfg.ProtectedPrefixes = []string{"/api/"}
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = config.DefaultReadHeaderTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultIdleTimeout
	}
	if cfg.Store == nil {
		cfg.Store = session.NewStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// Proxy fronts the upstream API: logins go through a dedicated HTTP/2
// session, everything else under the mounts is streamed through a
// reverse proxy, and the rest is served from the static directory.
type Proxy struct {
	config *Config
	target *url.URL
	diag   *diagnostics
	router chi.Router
}

// New creates a new proxy instance
func New(cfg *Config) (*Proxy, error) {
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	// The login exchange needs HTTP/2 negotiated over TLS
	if target.Scheme != "https" || target.Host == "" {
		return nil, fmt.Errorf("proxy target must be an https URL (got %q)", cfg.TargetURL)
	}

	// Skip this check when a custom transport is provided (used in tests
	// with httptest TLS servers which bind to 127.0.0.1).
	if cfg.Transport == nil && cfg.LoginTLSConfig == nil && isInternalHost(target.Hostname()) {
		return nil, fmt.Errorf("proxy target must not point to loopback/link-local addresses: %s", target.Hostname())
	}

	cfg.applyDefaults()

	p := &Proxy{
		config: cfg,
		target: target,
		diag:   &diagnostics{logger: cfg.Logger},
	}

	if cfg.DiagnosticLogPath != "" {
		dl, err := newDiagnosticLog(cfg.DiagnosticLogPath, cfg.DiagnosticMaxSize, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open diagnostic log: %w", err)
		}
		p.diag.sink = dl
	}

	p.router = p.routes()
	return p, nil
}

// routes wires the login handler, one forwarder per mount and the static
// client fallback.
func (p *Proxy) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(p.trackRequest)

	r.Method(http.MethodPost, p.config.LoginPath, newLoginHandler(p))

	buffers := newBufferPool(forwardBufferSize)
	for _, mount := range p.config.Mounts {
		r.Mount(mount, http.StripPrefix(mount, newForwarder(p, mount, buffers)))
	}

	if p.config.StaticDir != "" {
		r.NotFound(newStaticHandler(p.config.StaticDir, p.config.Logger).ServeHTTP)
	}

	return r
}

// ServeHTTP implements http.Handler
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

// Store returns the cookie store shared by the login handler and forwarders
func (p *Proxy) Store() *session.Store {
	return p.config.Store
}

// Close flushes the diagnostic log and releases resources
func (p *Proxy) Close() error {
	if p.diag.sink != nil {
		return p.diag.sink.close()
	}
	return nil
}

// isInternalHost reports whether host is a loopback or link-local address.
func isInternalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
