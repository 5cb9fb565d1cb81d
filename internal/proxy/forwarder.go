package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/tanelvakker/qwtimers/internal/errors"
	"github.com/tanelvakker/qwtimers/internal/session"
)

// forwardBufferSize bounds the per-copy buffer used to stream bodies in
// either direction.
const forwardBufferSize = 32 * 1024

// forwarder streams every request under one mount to the upstream.
//
// The mount strips its prefix before the forwarder sees the request; the
// forwarder puts it back exactly once. Upstream Set-Cookie headers are
// relayed to the client but not recorded: only login responses mint the
// session cookies the store replays.
type forwarder struct {
	prefix       string
	target       *url.URL
	store        *session.Store
	auth         authPolicy
	diag         *diagnostics
	logger       *slog.Logger
	reverseProxy *httputil.ReverseProxy
}

func newForwarder(p *Proxy, prefix string, buffers httputil.BufferPool) *forwarder {
	f := &forwarder{
		prefix: prefix,
		target: p.target,
		store:  p.config.Store,
		auth:   authPolicy{protected: p.config.ProtectedPrefixes},
		diag:   p.diag,
		logger: p.config.Logger,
	}

	f.reverseProxy = &httputil.ReverseProxy{
		Director:       f.direct,
		ModifyResponse: f.modifyResponse,
		ErrorHandler:   f.errorHandler,
		BufferPool:     buffers,
		ErrorLog:       slog.NewLogLogger(p.config.Logger.Handler(), slog.LevelWarn),
	}

	// Use custom transport if provided (e.g., for TLS test servers)
	if p.config.Transport != nil {
		f.reverseProxy.Transport = p.config.Transport
	}

	return f
}

// ServeHTTP implements http.Handler
func (f *forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.reverseProxy.ServeHTTP(w, r)
}

// originalPath is the path the client asked for. Outside the proxy router
// it is reconstructed from the stripped path.
func (f *forwarder) originalPath(r *http.Request, upstream string) string {
	if info := requestInfoFrom(r.Context()); info != nil {
		return info.OriginalPath
	}
	return upstream
}

func (f *forwarder) direct(req *http.Request) {
	req.URL.Scheme = f.target.Scheme
	req.URL.Host = f.target.Host
	req.Host = f.target.Host

	req.URL.Path = upstreamPath(f.prefix, req.URL.Path)
	if req.URL.RawPath != "" {
		req.URL.RawPath = upstreamPath(f.prefix, req.URL.RawPath)
	}

	original := f.originalPath(req, req.URL.Path)
	f.auth.apply(req.Header, original)
	injectCookies(req.Header, f.store)

	// Remove proxy hop-by-hop headers
	req.Header.Del("Proxy-Connection")
	req.Header.Del("Proxy-Authenticate")
	req.Header.Del("Proxy-Authorization")

	f.diag.emit(diagEvent{
		Event:        eventRequest,
		Route:        routeForward,
		RequestID:    requestID(req.Context()),
		Method:       req.Method,
		OriginalPath: original,
		UpstreamPath: req.URL.Path,
		Host:         req.Host,
	})
}

func (f *forwarder) modifyResponse(resp *http.Response) error {
	req := resp.Request
	f.diag.emit(diagEvent{
		Event:        eventResponse,
		Route:        routeForward,
		RequestID:    requestID(req.Context()),
		Method:       req.Method,
		OriginalPath: f.originalPath(req, req.URL.Path),
		UpstreamPath: req.URL.Path,
		Host:         req.Host,
		StatusCode:   resp.StatusCode,
		Duration:     elapsed(req.Context()),
	})
	return nil
}

func (f *forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	// r is the outbound request; its path is already rewritten.
	original := f.originalPath(r, r.URL.Path)

	// A client that went away has nobody left to answer.
	if r.Context().Err() != nil && errors.Is(err, context.Canceled) {
		f.logger.Debug("client disconnected during forward", "path", original)
		return
	}

	f.logger.Error("proxy error", "error", err, "path", original)
	failure := errors.Upstream(errors.KindUpstreamTransport, msgForwardFailed, err)
	f.diag.emit(diagEvent{
		Event:        eventFailure,
		Route:        routeForward,
		RequestID:    requestID(r.Context()),
		Method:       r.Method,
		OriginalPath: original,
		StatusCode:   failure.StatusCode(),
		Duration:     elapsed(r.Context()),
		Error:        err.Error(),
	})
	writeFailure(w, failure)
}

func requestID(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil {
		return info.ID
	}
	return ""
}

func elapsed(ctx context.Context) time.Duration {
	if info := requestInfoFrom(ctx); info != nil {
		return time.Since(info.Start)
	}
	return 0
}

// bufferPool hands out fixed-size copy buffers to the reverse proxy.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	bp := &bufferPool{size: size}
	bp.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

func (bp *bufferPool) Get() []byte {
	return *bp.pool.Get().(*[]byte)
}

func (bp *bufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}
