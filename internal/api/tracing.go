package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/arencloud/iris/internal/db"
	"github.com/arencloud/iris/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Lightweight in-memory tracing: each request carries a Trace with named
// events, kept in a ring buffer and persisted to the DB.

type TraceEvent struct {
	Time   time.Time      `json:"time"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

type Trace struct {
	ID        string        `json:"id"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int           `json:"status"`
	UserEmail string        `json:"userEmail,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	RemoteIP  string        `json:"remoteIp,omitempty"`
	ReqBytes  int64         `json:"reqBytes,omitempty"`
	RespBytes int64         `json:"respBytes,omitempty"`
	Started   time.Time     `json:"started"`
	Ended     time.Time     `json:"ended"`
	Duration  time.Duration `json:"duration"`
	Events    []TraceEvent  `json:"events"`
}

type traceStore struct {
	mu   sync.RWMutex
	buf  []*Trace
	next int
}

var traces = &traceStore{buf: make([]*Trace, 1000)}

func (s *traceStore) add(t *Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = t
	s.next = (s.next + 1) % len(s.buf)
}

// persistTrace stores the trace and its events so they survive restarts.
func persistTrace(t *Trace) {
	if t == nil || db.DB == nil {
		return
	}
	row := models.TraceRow{
		ID:         t.ID,
		Method:     t.Method,
		Path:       t.Path,
		Status:     t.Status,
		UserEmail:  t.UserEmail,
		UserAgent:  t.UserAgent,
		RemoteIP:   t.RemoteIP,
		ReqBytes:   t.ReqBytes,
		RespBytes:  t.RespBytes,
		Started:    t.Started,
		Ended:      t.Ended,
		DurationNs: int64(t.Duration),
	}
	_ = db.DB.Save(&row).Error
	for _, ev := range t.Events {
		fieldsBytes, _ := json.Marshal(ev.Fields)
		_ = db.DB.Create(&models.TraceEventRow{TraceID: t.ID, Time: ev.Time, Name: ev.Name, Fields: string(fieldsBytes)}).Error
	}
}

type ctxKey int

const traceKey ctxKey = 1

func traceFrom(ctx context.Context) *Trace {
	if t, ok := ctx.Value(traceKey).(*Trace); ok {
		return t
	}
	return nil
}

func withTraceCtx(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey, t)
}

func newTraceID() string { return uuid.NewString() }

func addEvent(r *http.Request, name string, fields map[string]any) {
	if t := traceFrom(r.Context()); t != nil {
		t.Events = append(t.Events, TraceEvent{Time: time.Now(), Name: name, Fields: fields})
	}
}

// respondError records an error event into the current trace and writes
// an HTTP error.
func respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	addEvent(r, "error", map[string]any{"code": code, "message": msg})
	http.Error(w, msg, code)
}

func traceRecent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var rows []models.TraceRow
	_ = db.DB.Order("started desc").Limit(200).Find(&rows).Error
	out := make([]*Trace, 0, len(rows))
	for _, t := range rows {
		out = append(out, &Trace{ID: t.ID, Method: t.Method, Path: t.Path, Status: t.Status, UserEmail: t.UserEmail, UserAgent: t.UserAgent, RemoteIP: t.RemoteIP, ReqBytes: t.ReqBytes, RespBytes: t.RespBytes, Started: t.Started, Ended: t.Ended, Duration: time.Duration(t.DurationNs)})
	}
	json.NewEncoder(w).Encode(out)
}

func traceGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing id", 400)
		return
	}
	var tr models.TraceRow
	if err := db.DB.First(&tr, "id = ?", id).Error; err != nil {
		http.Error(w, "not found", 404)
		return
	}
	var evs []models.TraceEventRow
	_ = db.DB.Where("trace_id = ?", id).Order("time asc").Find(&evs).Error
	out := &Trace{ID: tr.ID, Method: tr.Method, Path: tr.Path, Status: tr.Status, UserEmail: tr.UserEmail, UserAgent: tr.UserAgent, RemoteIP: tr.RemoteIP, ReqBytes: tr.ReqBytes, RespBytes: tr.RespBytes, Started: tr.Started, Ended: tr.Ended, Duration: time.Duration(tr.DurationNs)}
	for _, e := range evs {
		var f map[string]any
		if e.Fields != "" {
			_ = json.Unmarshal([]byte(e.Fields), &f)
		}
		out.Events = append(out.Events, TraceEvent{Time: e.Time, Name: e.Name, Fields: f})
	}
	json.NewEncoder(w).Encode(out)
}
