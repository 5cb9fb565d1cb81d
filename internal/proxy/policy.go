package proxy

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tanelvakker/qwtimers/internal/session"
)

// requestInfo is what the proxy remembers about an inbound request before
// any mount rewrites its path.
type requestInfo struct {
	ID           string
	OriginalPath string
	Start        time.Time
}

type requestInfoKey struct{}

// trackRequest records the request id and the client-visible path.
func (p *Proxy) trackRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{
			ID:           uuid.NewString(),
			OriginalPath: r.URL.Path,
			Start:        time.Now(),
		}
		p.config.Logger.Debug("request received",
			"id", info.ID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))
	})
}

// requestInfoFrom returns the tracked request info, or nil when the
// handler runs outside the proxy router.
func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// authPolicy decides whether a client's Authorization header travels upstream.
type authPolicy struct {
	protected []string
}

// forwards reports whether originalPath lies under a protected prefix.
func (a authPolicy) forwards(originalPath string) bool {
	for _, prefix := range a.protected {
		if strings.HasPrefix(originalPath, prefix) {
			return true
		}
	}
	return false
}

// apply keeps the Authorization header for protected paths and removes
// it everywhere else.
func (a authPolicy) apply(h http.Header, originalPath string) {
	if !a.forwards(originalPath) {
		h.Del("Authorization")
	}
}

// clientCookie folds all Cookie headers sent by the client into one value.
func clientCookie(h http.Header) string {
	return strings.Join(h.Values("Cookie"), "; ")
}

// injectCookies replaces the outbound Cookie header with the client's
// cookies followed by the stored upstream session cookies.
func injectCookies(h http.Header, store *session.Store) {
	merged := store.Merge(clientCookie(h))
	if merged == "" {
		h.Del("Cookie")
		return
	}
	h.Set("Cookie", merged)
}

// upstreamPath re-prepends the mount prefix to a path the mount stripped.
// A root mount ("/") strips the leading slash, which is put back once.
func upstreamPath(prefix, suffix string) string {
	base := strings.TrimSuffix(prefix, "/")
	switch {
	case suffix == "" && base == "":
		return "/"
	case suffix == "":
		return prefix
	case strings.HasPrefix(suffix, "/"):
		return base + suffix
	default:
		return base + "/" + suffix
	}
}
