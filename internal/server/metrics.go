package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// Metrics counts war and engagement traffic and exposes it as JSON.
type Metrics struct {
	wsConnections atomic.Int64
	warsDeclared  atomic.Int64
	warsAccepted  atomic.Int64
	warsSettled   atomic.Int64
	counterOffers atomic.Int64
	events        atomic.Int64
	rateLimited   atomic.Int64
	startTime     time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrWSConn()      { m.wsConnections.Add(1) }
func (m *Metrics) DecrWSConn()      { m.wsConnections.Add(-1) }
func (m *Metrics) IncrDeclared()    { m.warsDeclared.Add(1) }
func (m *Metrics) IncrAccepted()    { m.warsAccepted.Add(1) }
func (m *Metrics) IncrCounter()     { m.counterOffers.Add(1) }
func (m *Metrics) IncrEvent()       { m.events.Add(1) }
func (m *Metrics) IncrRateLimited() { m.rateLimited.Add(1) }

func (m *Metrics) WSConnections() int64 { return m.wsConnections.Load() }
func (m *Metrics) WarsSettled() int64   { return m.warsSettled.Load() }

// WarUpdated counts settlements, wherever they were triggered from.
func (m *Metrics) WarUpdated(w *store.War) {
	if w != nil && w.Status == store.StatusCompleted {
		m.warsSettled.Add(1)
	}
}

// ServeHTTP exposes metrics as JSON at /metrics.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := map[string]any{
		"uptime_seconds": int(time.Since(m.startTime).Seconds()),
		"ws_connections": m.wsConnections.Load(),
		"wars_declared":  m.warsDeclared.Load(),
		"wars_accepted":  m.warsAccepted.Load(),
		"wars_settled":   m.warsSettled.Load(),
		"counter_offers": m.counterOffers.Load(),
		"events":         m.events.Load(),
		"rate_limited":   m.rateLimited.Load(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
