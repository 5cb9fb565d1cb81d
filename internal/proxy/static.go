package proxy

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// staticHandler serves the browser client from a directory. Request paths
// are resolved inside the root, following symlinks without escaping it.
type staticHandler struct {
	root   string
	logger *slog.Logger
}

func newStaticHandler(root string, logger *slog.Logger) *staticHandler {
	return &staticHandler{root: root, logger: logger}
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	path, err := securejoin.SecureJoin(s.root, r.URL.Path)
	if err != nil {
		s.logger.Debug("static path rejected", "path", r.URL.Path, "error", err)
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		path = filepath.Join(path, "index.html")
		info, err = os.Stat(path)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
