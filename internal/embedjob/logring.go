package embedjob

import (
	"sync"
	"time"
)

// Log levels used in the run log ring.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// defaultLogCapacity bounds the in-memory run log.
const defaultLogCapacity = 1000

// LogEntry is one run log line. Batch and Processed capture the run position
// at the time of logging.
type LogEntry struct {
	Time      time.Time              `json:"time"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Batch     int64                  `json:"batch"`
	Processed int64                  `json:"processed"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// logRing is a bounded buffer of run log entries. Appends beyond capacity
// evict the oldest entry.
type logRing struct {
	mu   sync.Mutex
	buf  []LogEntry
	next int
	full bool
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &logRing{buf: make([]LogEntry, capacity)}
}

func (r *logRing) append(e LogEntry) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// recent returns up to limit entries, newest first. A non-empty level keeps
// only entries of that level; limit <= 0 means no limit.
func (r *logRing) recent(limit int, level string) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.next
	if r.full {
		total = len(r.buf)
	}
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]LogEntry, 0, limit)
	for i := 1; i <= total && len(out) < limit; i++ {
		e := r.buf[(r.next-i+len(r.buf))%len(r.buf)]
		if level != "" && e.Level != level {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *logRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// clear drops every entry and releases their payloads.
func (r *logRing) clear() {
	r.mu.Lock()
	for i := range r.buf {
		r.buf[i] = LogEntry{}
	}
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
