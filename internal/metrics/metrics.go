// Package metrics exposes client counters over Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/promptline/internal/render"
)

// Poll outcomes.
const (
	PollOK    = "ok"
	PollError = "error"
	PollStale = "stale"
)

// Session events.
const (
	SessionStarted   = "started"
	SessionStopped   = "stopped"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

type Metrics struct {
	Registry *prometheus.Registry

	Polls           *prometheus.CounterVec
	PromptsRendered *prometheus.CounterVec
	Sessions        *prometheus.CounterVec
	Autosaves       *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	ActiveSession   prometheus.Gauge
	LastSeen        prometheus.Gauge
}

// New creates the metrics on a private registry, alongside Go runtime
// collectors.
func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.Polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptline_polls_total",
			Help: "Prompt polls by outcome",
		},
		[]string{"outcome"},
	)
	m.PromptsRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptline_prompts_rendered_total",
			Help: "Prompts rendered by kind",
		},
		[]string{"kind"},
	)
	m.Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptline_sessions_total",
			Help: "Session lifecycle events",
		},
		[]string{"event"},
	)
	m.Autosaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptline_autosaves_total",
			Help: "Autosave attempts by record and status",
		},
		[]string{"record", "status"},
	)
	m.Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptline_deliveries_total",
			Help: "Forwarded prompts by target and status",
		},
		[]string{"target", "status"},
	)
	m.ActiveSession = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promptline_session_active",
		Help: "1 while a session is active",
	})
	m.LastSeen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promptline_last_seen_prompt_id",
		Help: "Cursor of the active session",
	})

	m.Registry.MustRegister(
		m.Polls,
		m.PromptsRendered,
		m.Sessions,
		m.Autosaves,
		m.Deliveries,
		m.ActiveSession,
		m.LastSeen,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Poll(outcome string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Session(event string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(event).Inc()
	switch event {
	case SessionStarted:
		m.ActiveSession.Set(1)
	case SessionStopped, SessionCompleted:
		m.ActiveSession.Set(0)
	}
}

func (m *Metrics) Cursor(lastSeen int) {
	if m == nil {
		return
	}
	m.LastSeen.Set(float64(lastSeen))
}

// Autosave is shaped to plug into autosave.Options.OnResult.
func (m *Metrics) Autosave(record string, err error) {
	if m == nil {
		return
	}
	m.Autosaves.WithLabelValues(record, status(err)).Inc()
}

func (m *Metrics) Delivery(target string, err error) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(target, status(err)).Inc()
}

// RenderHook counts rendered prompts by kind.
func (m *Metrics) RenderHook() render.Hook {
	return func(u *render.Unit) {
		if m == nil {
			return
		}
		kind := "regular"
		switch {
		case u.Emphasis:
			kind = "final"
		case u.Pulse:
			kind = "countdown"
		}
		m.PromptsRendered.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
