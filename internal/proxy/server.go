package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
)

// Server wraps the proxy with lifecycle management
type Server struct {
	proxy  *Proxy
	server *http.Server

	stopOnce sync.Once
	stopped  chan struct{} // closed once Shutdown has drained and closed the proxy
}

// NewServer creates a new proxy server
func NewServer(cfg *Config) (*Server, error) {
	proxy, err := New(cfg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           proxy,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return &Server{
		proxy:   proxy,
		server:  server,
		stopped: make(chan struct{}),
	}, nil
}

// Start starts the proxy server and blocks until it stops.
// A server stopped through Shutdown returns nil once Shutdown has finished.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	s.proxy.config.Logger.Info("starting proxy server",
		"addr", ln.Addr().String(),
		"target", s.proxy.target.String())
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		// Serve returns as soon as Shutdown begins; in-flight requests
		// are still running.
		<-s.stopped
		return nil
	}
	return err
}

// Shutdown stops accepting connections, waits for in-flight requests and
// then releases proxy resources.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.stopOnce.Do(func() { close(s.stopped) })

	err := s.server.Shutdown(ctx)
	if cerr := s.proxy.Close(); err == nil {
		err = cerr
	}
	return err
}

// Proxy returns the underlying proxy handler
func (s *Server) Proxy() *Proxy {
	return s.proxy
}
