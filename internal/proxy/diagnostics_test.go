package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readDiagEvents(t *testing.T, path string) []diagEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var events []diagEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev diagEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid diagnostic line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	return events
}

func TestDiagnosticLog_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy-debug.log")
	dl, err := newDiagnosticLog(path, 0, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	d := &diagnostics{logger: discardLogger(), sink: dl}

	d.emit(diagEvent{Event: eventRequest, Route: routeLogin, Method: "POST", OriginalPath: "/api/user/login"})
	d.emit(diagEvent{Event: eventResponse, Route: routeLogin, Method: "POST", OriginalPath: "/api/user/login", StatusCode: 200, Duration: 5 * time.Millisecond})

	if err := dl.close(); err != nil {
		t.Fatal(err)
	}

	events := readDiagEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != eventRequest || events[1].Event != eventResponse {
		t.Errorf("unexpected event order: %q, %q", events[0].Event, events[1].Event)
	}
	if events[1].StatusCode != 200 {
		t.Errorf("expected status 200, got %d", events[1].StatusCode)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected emit to stamp the event")
	}
}

func TestDiagnosticLog_EnqueueAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy-debug.log")
	dl, err := newDiagnosticLog(path, 0, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.close(); err != nil {
		t.Fatal(err)
	}

	// Neither call may panic or block.
	dl.enqueue(diagEvent{Event: eventRequest})
	if err := dl.close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	if events := readDiagEvents(t, path); len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestDiagnosticLog_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy-debug.log")
	dl, err := newDiagnosticLog(path, 1, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	// Every line exceeds one byte, so each write rotates.
	for i := 0; i < 5; i++ {
		dl.enqueue(diagEvent{Event: eventRequest, Route: routeForward, OriginalPath: "/devices/list"})
	}
	if err := dl.close(); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= diagKeepFiles; i++ {
		rotated := fmt.Sprintf("%s.%d", path, i)
		if events := readDiagEvents(t, rotated); len(events) != 1 {
			t.Errorf("%s: expected 1 event, got %d", rotated, len(events))
		}
	}
	if _, err := os.Stat(path + ".4"); !os.IsNotExist(err) {
		t.Errorf("expected at most %d rotated files", diagKeepFiles)
	}
	if events := readDiagEvents(t, path); len(events) != 0 {
		t.Errorf("expected a fresh current file, got %d events", len(events))
	}
}

func TestProxy_DiagnosticLogRecordsForward(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	path := filepath.Join(t.TempDir(), "proxy-debug.log")
	proxy, err := New(&Config{
		TargetURL:         upstream.URL,
		Transport:         upstream.Client().Transport,
		DiagnosticLogPath: path,
		Logger:            discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/timer/periods/dev1/relay1", nil))
	if err := proxy.Close(); err != nil {
		t.Fatal(err)
	}

	events := readDiagEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("expected request and response events, got %d", len(events))
	}
	req, resp := events[0], events[1]
	if req.RequestID == "" || req.RequestID != resp.RequestID {
		t.Errorf("expected a shared request id, got %q and %q", req.RequestID, resp.RequestID)
	}
	if req.OriginalPath != "/api/timer/periods/dev1/relay1" || req.UpstreamPath != "/api/timer/periods/dev1/relay1" {
		t.Errorf("unexpected paths %q -> %q", req.OriginalPath, req.UpstreamPath)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", resp.StatusCode)
	}
}
