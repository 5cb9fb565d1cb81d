package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/tanelvakker/qwtimers/internal/errors"
	"github.com/tanelvakker/qwtimers/internal/session"
)

// Fixed request headers sent with every login.
const (
	loginContentType = "application/x-www-form-urlencoded; charset=UTF-8"
	loginAccept      = "application/json, text/javascript, */*; q=0.01"
)

// loginForwardableHeaders are browser headers copied onto the login
// request when the client supplied them.
var loginForwardableHeaders = []string{
	"Accept",
	"Accept-Language",
	"Origin",
	"Referer",
	"Sec-Ch-Ua",
	"Sec-Ch-Ua-Mobile",
	"Sec-Ch-Ua-Platform",
	"Sec-Fetch-Dest",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Site",
	"User-Agent",
	"Priority",
}

var errLoginBodyTooLarge = fmt.Errorf("upstream login response exceeds limit")

// loginState tracks one login exchange.
type loginState int

const (
	stateOpening loginState = iota
	stateSending
	stateReceiving
	stateClosed
	stateTimedOut
	stateFailed
)

func (s loginState) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateSending:
		return "sending"
	case stateReceiving:
		return "receiving"
	case stateClosed:
		return "closed"
	case stateTimedOut:
		return "timed_out"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s loginState) terminal() bool {
	return s >= stateClosed
}

// loginHandler relays the login form to the upstream over a fresh HTTP/2
// session per request. The upstream login endpoint only behaves under
// HTTP/2, so it cannot share the generic forwarder's transport.
type loginHandler struct {
	target    *url.URL
	path      string
	timeout   time.Duration
	maxBody   int64
	maxForm   int64
	store     *session.Store
	tlsConfig *tls.Config
	diag      *diagnostics
	logger    *slog.Logger
}

func newLoginHandler(p *Proxy) *loginHandler {
	return &loginHandler{
		target:    p.target,
		path:      p.config.LoginPath,
		timeout:   p.config.LoginTimeout,
		maxBody:   p.config.MaxLoginBodyBytes,
		maxForm:   p.config.MaxFormBytes,
		store:     p.config.Store,
		tlsConfig: p.config.LoginTLSConfig,
		diag:      p.diag,
		logger:    p.config.Logger,
	}
}

// ServeHTTP implements http.Handler
func (h *loginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The exchange context ends on timeout or when the client goes away.
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ex := &loginExchange{
		h:     h,
		w:     w,
		r:     r,
		ctx:   ctx,
		state: stateOpening,
	}
	ex.original = r.URL.Path
	if info := requestInfoFrom(r.Context()); info != nil {
		ex.original = info.OriginalPath
	}
	ex.run()
}

// loginSession is one upstream HTTP/2 connection, used for a single request.
type loginSession struct {
	cc   *http2.ClientConn
	once sync.Once
}

// release closes the session. Safe to call from any goroutine; only the
// first call has an effect.
func (s *loginSession) release() {
	s.once.Do(func() {
		_ = s.cc.Close()
	})
}

// open dials the upstream and negotiates HTTP/2 over TLS.
func (h *loginHandler) open(ctx context.Context) (*loginSession, error) {
	tlsConfig := &tls.Config{}
	if h.tlsConfig != nil {
		tlsConfig = h.tlsConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = h.target.Hostname()
	}
	tlsConfig.NextProtos = []string{http2.NextProtoTLS}

	addr := h.target.Host
	if h.target.Port() == "" {
		addr = net.JoinHostPort(h.target.Hostname(), "443")
	}

	dialer := &tls.Dialer{Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if proto := conn.(*tls.Conn).ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
		conn.Close()
		return nil, fmt.Errorf("upstream %s did not negotiate HTTP/2 (got %q)", addr, proto)
	}

	transport := &http2.Transport{DisableCompression: true}
	cc, err := transport.NewClientConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &loginSession{cc: cc}, nil
}

// upstreamCapture is the buffered upstream response.
type upstreamCapture struct {
	status int
	header http.Header
	body   []byte
}

// loginExchange drives one login through its states. Everything except
// session release runs on the request goroutine, so the responded flag
// is the only guard needed against double writes.
type loginExchange struct {
	h        *loginHandler
	w        http.ResponseWriter
	r        *http.Request
	ctx      context.Context
	original string

	state     loginState
	session   *loginSession
	responded bool
}

func (ex *loginExchange) run() {
	defer ex.releaseSession()

	form, err := ex.readForm()
	if err != nil {
		ex.fail(errors.KindInternal, msgLoginInternal, err)
		return
	}

	sess, err := ex.h.open(ex.ctx)
	if err != nil {
		ex.fail(errors.KindUpstreamConnection, msgLoginSetupFailed, err)
		return
	}
	ex.session = sess
	// Tear the session down as soon as the watchdog fires or the client
	// disconnects, even if a read is still blocked.
	stop := context.AfterFunc(ex.ctx, sess.release)
	defer stop()

	ex.transition(stateSending)
	req, err := ex.buildRequest(form)
	if err != nil {
		ex.fail(errors.KindInternal, msgLoginInternal, err)
		return
	}
	ex.h.diag.emit(diagEvent{
		Event:        eventRequest,
		Route:        routeLogin,
		RequestID:    requestID(ex.r.Context()),
		Method:       req.Method,
		OriginalPath: ex.original,
		UpstreamPath: req.URL.Path,
		Host:         req.Host,
	})

	resp, err := sess.cc.RoundTrip(req)
	if err != nil {
		ex.fail(errors.KindUpstreamTransport, msgLoginRequestFailed, err)
		return
	}

	ex.transition(stateReceiving)
	capture, err := ex.receive(resp)
	if err != nil {
		msg := msgLoginRequestFailed
		if errors.Is(err, errLoginBodyTooLarge) {
			msg = msgLoginTooLarge
		}
		ex.fail(errors.KindUpstreamTransport, msg, err)
		return
	}

	ex.deliver(capture)
	ex.transition(stateClosed)
}

func (ex *loginExchange) transition(next loginState) {
	if ex.state.terminal() {
		return
	}
	ex.h.logger.Debug("login state", "id", requestID(ex.r.Context()), "from", ex.state, "to", next)
	ex.state = next
}

// readForm parses the client's form body, bounded by the form limit.
func (ex *loginExchange) readForm() (url.Values, error) {
	ex.r.Body = http.MaxBytesReader(ex.w, ex.r.Body, ex.h.maxForm)
	if err := ex.r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse login form: %w", err)
	}
	return ex.r.PostForm, nil
}

func (ex *loginExchange) buildRequest(form url.Values) (*http.Request, error) {
	body := form.Encode()

	u := &url.URL{Scheme: ex.h.target.Scheme, Host: ex.h.target.Host, Path: ex.h.path}
	req, err := http.NewRequestWithContext(ex.ctx, http.MethodPost, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Host = ex.h.target.Host

	req.Header.Set("Content-Type", loginContentType)
	req.Header.Set("Accept", loginAccept)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Cache-Control", "no-cache")

	for _, name := range loginForwardableHeaders {
		if ex.r.Header.Get(name) == "" {
			continue
		}
		req.Header[name] = append([]string(nil), ex.r.Header.Values(name)...)
	}
	if _, ok := req.Header["User-Agent"]; !ok {
		// An empty value keeps the transport from sending its own.
		req.Header["User-Agent"] = []string{""}
	}

	if cookie := ex.h.store.Merge(clientCookie(ex.r.Header)); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	// NewRequest sized the body; the transport derives content-length from it.
	return req, nil
}

// receive buffers the upstream response up to the body limit.
func (ex *loginExchange) receive(resp *http.Response) (*upstreamCapture, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, ex.h.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > ex.h.maxBody {
		return nil, errLoginBodyTooLarge
	}

	return &upstreamCapture{
		status: upstreamStatus(resp.StatusCode),
		header: resp.Header,
		body:   body,
	}, nil
}

// deliver records upstream session cookies and relays the response.
func (ex *loginExchange) deliver(c *upstreamCapture) {
	ex.h.store.Ingest(c.header.Values("Set-Cookie")...)

	dst := ex.w.Header()
	for name, values := range c.header {
		if strings.HasPrefix(name, ":") {
			continue
		}
		dst[name] = values
	}

	ex.h.diag.emit(diagEvent{
		Event:        eventResponse,
		Route:        routeLogin,
		RequestID:    requestID(ex.r.Context()),
		Method:       ex.r.Method,
		OriginalPath: ex.original,
		UpstreamPath: ex.h.path,
		Host:         ex.h.target.Host,
		StatusCode:   c.status,
		Duration:     elapsed(ex.r.Context()),
	})

	if ex.responded {
		return
	}
	ex.responded = true
	ex.w.WriteHeader(c.status)
	_, _ = ex.w.Write(c.body)
}

// fail moves the exchange into a terminal failure state and answers the
// client once. The kind is overridden when the exchange context ended.
func (ex *loginExchange) fail(kind errors.Kind, message string, cause error) {
	switch {
	case ex.r.Context().Err() != nil:
		ex.transition(stateFailed)
		ex.h.logger.Debug("client disconnected during login", "id", requestID(ex.r.Context()), "error", cause)
		return
	case ex.ctx.Err() == context.DeadlineExceeded:
		ex.transition(stateTimedOut)
		kind, message = errors.KindUpstreamTimeout, msgLoginTimedOut
		ex.h.logger.Warn("login request timed out", "timeout", ex.h.timeout)
	default:
		ex.transition(stateFailed)
		ex.h.logger.Error("login proxy error", "kind", kind, "error", cause)
	}

	failure := errors.Upstream(kind, message, cause)
	ex.h.diag.emit(diagEvent{
		Event:        eventFailure,
		Route:        routeLogin,
		RequestID:    requestID(ex.r.Context()),
		Method:       ex.r.Method,
		OriginalPath: ex.original,
		StatusCode:   failure.StatusCode(),
		Duration:     elapsed(ex.r.Context()),
		Error:        failure.Error(),
	})

	if ex.responded {
		return
	}
	ex.responded = true
	writeFailure(ex.w, failure)
}

func (ex *loginExchange) releaseSession() {
	if ex.session != nil {
		ex.session.release()
	}
}

// upstreamStatus falls back to 502 for a status the client cannot be sent.
func upstreamStatus(code int) int {
	if code < 100 || code > 999 {
		return http.StatusBadGateway
	}
	return code
}
