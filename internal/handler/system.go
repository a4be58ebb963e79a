package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is one readiness dependency. Wrap db.PingContext or a redis ping
// with PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SessionCounter reports the live wizard sessions.
type SessionCounter interface {
	Len() int
}

type SystemHandler struct {
	deps      map[string]Pinger
	sessions  SessionCounter
	gatherer  prometheus.Gatherer
	logger    Logger
	startTime time.Time
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewSystemHandler(deps map[string]Pinger, sessions SessionCounter, gatherer prometheus.Gatherer, log Logger) *SystemHandler {
	return &SystemHandler{
		deps:      deps,
		sessions:  sessions,
		gatherer:  gatherer,
		logger:    log,
		startTime: time.Now(),
	}
}

func (h *SystemHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Health reports liveness only.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"sessions":       h.sessions.Len(),
	})
}

// Ready pings every dependency and fails when any of them is down.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", map[string]interface{}{
				"dependency": name,
				"error":      err.Error(),
			})
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
