package proxy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// diagEvent is one line of the diagnostic log.
type diagEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	Event        string        `json:"event"`
	Route        string        `json:"route"`
	RequestID    string        `json:"request_id,omitempty"`
	Method       string        `json:"method"`
	OriginalPath string        `json:"original_path"`
	UpstreamPath string        `json:"upstream_path,omitempty"`
	Host         string        `json:"host,omitempty"`
	StatusCode   int           `json:"status_code,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	Error        string        `json:"error,omitempty"`
}

const (
	eventRequest  = "request"
	eventResponse = "response"
	eventFailure  = "failure"

	routeLogin   = "login"
	routeForward = "forward"
)

// diagnostics fans events out to slog and the optional diagnostic file.
// emit never blocks and never fails the request.
type diagnostics struct {
	logger *slog.Logger
	sink   *diagnosticLog
}

func (d *diagnostics) emit(ev diagEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	attrs := []any{
		"route", ev.Route,
		"id", ev.RequestID,
		"method", ev.Method,
		"path", ev.OriginalPath,
	}
	if ev.UpstreamPath != "" {
		attrs = append(attrs, "upstream_path", ev.UpstreamPath, "host", ev.Host)
	}
	if ev.StatusCode != 0 {
		attrs = append(attrs, "status", ev.StatusCode, "duration", ev.Duration)
	}
	if ev.Error != "" {
		attrs = append(attrs, "error", ev.Error)
	}
	d.logger.Debug("proxy "+ev.Event, attrs...)

	if d.sink != nil {
		d.sink.enqueue(ev)
	}
}

// diagnosticLog writes events to a file with size-based rotation.
// Writes happen on a background goroutine; events that do not fit in
// the queue are dropped and counted.
type diagnosticLog struct {
	path    string
	maxSize int64 // max file size in bytes before rotation (0 = no limit)
	file    *os.File
	size    int64
	logger  *slog.Logger

	events  chan diagEvent
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex // guards closed against enqueue
	closed bool
}

const (
	diagQueueSize = 256
	diagKeepFiles = 3 // keep current + 3 rotated files
)

func newDiagnosticLog(path string, maxSize int64, logger *slog.Logger) (*diagnosticLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	info, _ := f.Stat()
	var size int64
	if info != nil {
		size = info.Size()
	}
	dl := &diagnosticLog{
		path:    path,
		maxSize: maxSize,
		file:    f,
		size:    size,
		logger:  logger,
		events:  make(chan diagEvent, diagQueueSize),
		done:    make(chan struct{}),
	}
	go dl.run()
	return dl, nil
}

func (dl *diagnosticLog) enqueue(ev diagEvent) {
	dl.mu.RLock()
	defer dl.mu.RUnlock()
	if dl.closed {
		return
	}
	select {
	case dl.events <- ev:
	default:
		dl.dropped.Add(1)
	}
}

func (dl *diagnosticLog) run() {
	defer close(dl.done)
	for ev := range dl.events {
		dl.write(ev)
	}
}

func (dl *diagnosticLog) write(ev diagEvent) {
	if dl.file == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		dl.logger.Warn("diagnostic log encode failed", "error", err)
		return
	}
	data = append(data, '\n')

	n, err := dl.file.Write(data)
	dl.size += int64(n)
	if err != nil {
		dl.logger.Warn("diagnostic log write failed", "error", err)
		return
	}

	if dl.maxSize > 0 && dl.size >= dl.maxSize {
		dl.rotate()
	}
}

func (dl *diagnosticLog) rotate() {
	dl.file.Close()
	dl.file = nil

	// Shift existing rotated files: .3 -> deleted, .2 -> .3, .1 -> .2, current -> .1
	for i := diagKeepFiles; i > 0; i-- {
		old := fmt.Sprintf("%s.%d", dl.path, i)
		if i == diagKeepFiles {
			os.Remove(old)
		}
		if i > 1 {
			prev := fmt.Sprintf("%s.%d", dl.path, i-1)
			os.Rename(prev, old)
		} else {
			os.Rename(dl.path, old)
		}
	}

	f, err := os.OpenFile(dl.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		dl.logger.Warn("diagnostic log rotation failed", "error", err)
		return
	}
	dl.file = f
	dl.size = 0
}

// close drains queued events and closes the file.
func (dl *diagnosticLog) close() error {
	dl.mu.Lock()
	if dl.closed {
		dl.mu.Unlock()
		return nil
	}
	dl.closed = true
	close(dl.events)
	dl.mu.Unlock()

	<-dl.done

	if n := dl.dropped.Load(); n > 0 {
		dl.logger.Warn("diagnostic events dropped", "count", n)
	}
	if dl.file == nil {
		return nil
	}
	return dl.file.Close()
}
