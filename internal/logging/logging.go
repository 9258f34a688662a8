package logging

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Error(msg string, kv ...any)
	Fatal(msg string, kv ...any)
}

type Entry struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

type stdLogger struct {
	json bool
	mu   sync.Mutex
}

// ring keeps the most recent entries for the /logs endpoints.
type ring struct {
	mu   sync.RWMutex
	buf  []*Entry
	next int
}

var recent = &ring{buf: make([]*Entry, 1000)}

var (
	levelMu  sync.RWMutex
	logLevel = "info"

	subMu       sync.RWMutex
	subscribers = map[chan *Entry]struct{}{}

	persistMu sync.RWMutex
	persistFn func(any) error
)

var levelOrder = map[string]int{"debug": 0, "info": 1, "error": 2, "fatal": 3}

// New creates a logger; honors env vars LOG_LEVEL (debug|info|error), LOG_JSON (true|false).
func New(env string) Logger {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "info"
	}
	SetLevel(lvl)
	j := os.Getenv("LOG_JSON") != "false"
	return &stdLogger{json: j}
}

// SetPersist registers a callback invoked asynchronously for every entry.
func SetPersist(fn func(any) error) {
	persistMu.Lock()
	defer persistMu.Unlock()
	persistFn = fn
}

func SetLevel(lvl string) {
	levelMu.Lock()
	defer levelMu.Unlock()
	if _, ok := levelOrder[lvl]; ok {
		logLevel = lvl
		return
	}
	logLevel = "info"
}

func GetLevel() string {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return logLevel
}

func shouldLog(lvl string) bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return levelOrder[lvl] >= levelOrder[logLevel]
}

func broadcast(e *Entry) {
	subMu.RLock()
	defer subMu.RUnlock()
	for ch := range subscribers {
		select {
		case ch <- e:
		default: // drop if slow
		}
	}
}

func (r *ring) add(e *Entry) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	r.mu.Unlock()
}

func record(e *Entry) {
	recent.add(e)
	broadcast(e)
	persistMu.RLock()
	fn := persistFn
	persistMu.RUnlock()
	if fn != nil {
		go fn(e)
	}
}

func fieldsFromKV(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}

func (l *stdLogger) write(level, msg string, kv ...any) {
	if !shouldLog(level) {
		return
	}
	e := &Entry{Time: time.Now(), Level: level, Msg: msg, Fields: fieldsFromKV(kv)}
	record(e)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.json {
		b, _ := json.Marshal(e)
		log.Println(string(b))
		return
	}
	args := []any{"[" + e.Time.Format(time.RFC3339) + "]", level + ":", msg}
	for k, v := range e.Fields {
		args = append(args, k, v)
	}
	log.Println(args...)
}

func (l *stdLogger) Debug(msg string, kv ...any) { l.write("debug", msg, kv...) }
func (l *stdLogger) Info(msg string, kv ...any)  { l.write("info", msg, kv...) }
func (l *stdLogger) Error(msg string, kv ...any) { l.write("error", msg, kv...) }
func (l *stdLogger) Fatal(msg string, kv ...any) { l.write("fatal", msg, kv...); os.Exit(1) }

// Recent returns up to n most recent log entries (newest-first).
func Recent(n int) []*Entry {
	recent.mu.RLock()
	defer recent.mu.RUnlock()
	size := len(recent.buf)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]*Entry, 0, n)
	i := (recent.next - 1 + size) % size
	for c := 0; c < size && len(out) < n; c++ {
		if recent.buf[i] != nil {
			out = append(out, recent.buf[i])
		}
		i = (i - 1 + size) % size
	}
	return out
}

// Subscribe returns a channel receiving new entries and a cancel func.
func Subscribe() (<-chan *Entry, func()) {
	ch := make(chan *Entry, 100)
	subMu.Lock()
	subscribers[ch] = struct{}{}
	subMu.Unlock()
	cancel := func() {
		subMu.Lock()
		delete(subscribers, ch)
		close(ch)
		subMu.Unlock()
	}
	return ch, cancel
}
