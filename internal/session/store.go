// Package session holds the upstream session cookies replayed by the proxy.
package session

import (
	"sort"
	"strings"
	"sync"
)

// Store is the process-wide table of upstream session cookies.
//
// Cookies are keyed by name only: there is no expiry, domain or path scoping,
// and a new value for an existing name overwrites the old one. The store is
// not scoped per client, so every browser talking to the same proxy shares the
// upstream session that was last minted through it. That is deliberate for a
// single-tenant local proxy and must not be relied upon in a shared deployment.
//
// Store is safe for concurrent use. A single Ingest call is applied atomically;
// concurrent Ingest calls for the same name race and the last one wins.
type Store struct {
	mu      sync.RWMutex
	cookies map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{cookies: make(map[string]string)}
}

// Ingest records the name=value pair of each Set-Cookie directive.
// Directives without a name or without a value separator are skipped.
func (s *Store) Ingest(setCookies ...string) {
	pairs := make(map[string]string, len(setCookies))
	for _, raw := range setCookies {
		name, value, ok := parseDirective(raw)
		if !ok {
			continue
		}
		pairs[name] = value
	}
	if len(pairs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range pairs {
		s.cookies[name] = value
	}
}

// parseDirective extracts the cookie pair preceding the first attribute.
func parseDirective(raw string) (name, value string, ok bool) {
	pair, _, _ := strings.Cut(raw, ";")
	if pair == "" {
		return "", "", false
	}
	name, value, found := strings.Cut(pair, "=")
	if !found {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// Get returns the stored value for name.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cookies[name]
	return v, ok
}

// Len returns the number of stored cookies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cookies)
}

// HeaderString renders the store as a Cookie header value.
// Pairs are sorted by name so the output is stable.
func (s *Store) HeaderString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.cookies) == 0 {
		return ""
	}

	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(s.cookies[name])
	}
	return b.String()
}

// Merge combines the client's Cookie header with the stored cookies.
// Client cookies come first; overlapping names are not deduplicated.
func (s *Store) Merge(clientCookie string) string {
	stored := s.HeaderString()
	switch {
	case clientCookie != "" && stored != "":
		return clientCookie + "; " + stored
	case stored != "":
		return stored
	default:
		return clientCookie
	}
}
