package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newStaticRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>timers</html>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "js"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "js", "app.js"), []byte("console.log(1)"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestStaticHandler(t *testing.T) {
	root := newStaticRoot(t)
	outside := filepath.Join(filepath.Dir(root), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	h := newStaticHandler(root, discardLogger())

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"root serves index", "GET", "/", http.StatusOK, "<html>timers</html>"},
		{"file", "GET", "/js/app.js", http.StatusOK, "console.log(1)"},
		{"missing", "GET", "/nope.css", http.StatusNotFound, ""},
		{"directory without index", "GET", "/js/", http.StatusNotFound, ""},
		{"traversal stays inside root", "GET", "/../secret.txt", http.StatusNotFound, ""},
		{"post rejected", "POST", "/index.html", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.URL.Path = tt.path
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, w.Body.String())
			}
		})
	}
}

func TestProxy_ServesStaticClient(t *testing.T) {
	root := newStaticRoot(t)
	proxy, err := New(&Config{
		TargetURL: "https://app.qilowatt.it",
		StaticDir: root,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer proxy.Close()

	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, httptest.NewRequest("GET", "/js/app.js", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "console.log(1)" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}
