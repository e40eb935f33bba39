// Package metrics exports the agent's activity as Prometheus metrics and
// serves them together with a health endpoint.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"wsagent/internal/reporting"
	"wsagent/pkg/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "Metrics"

// Metrics holds the collectors. Each instance has its own registry.
type Metrics struct {
	registry      *prometheus.Registry
	sessions      *prometheus.CounterVec
	streamErrors  *prometheus.CounterVec
	snapshots     prometheus.Counter
	edges         prometheus.Counter
	actions       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	ports         prometheus.Gauge
	exposedPorts  prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_stream_sessions_total",
			Help: "Stream sessions opened, by stream.",
		}, []string{"stream"}),
		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_stream_errors_total",
			Help: "Stream sessions ended, by stream and condition.",
		}, []string{"stream", "condition"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsagent_port_snapshots_total",
			Help: "Port snapshots applied.",
		}),
		edges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsagent_port_edges_total",
			Help: "Transitions of a port into the exposed and served state.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_actions_total",
			Help: "Actions carried out for exposed ports, by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_notifications_total",
			Help: "Prompts by outcome.",
		}, []string{"outcome"}),
		ports: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsagent_ports",
			Help: "Ports currently known.",
		}),
		exposedPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsagent_exposed_ports",
			Help: "Ports currently exposed and served.",
		}),
	}
	m.registry.MustRegister(m.sessions, m.streamErrors, m.snapshots, m.edges,
		m.actions, m.notifications, m.ports, m.exposedPorts)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Attach updates the collectors from events published on bus.
func (m *Metrics) Attach(bus reporting.EventBus) *reporting.EventSubscription {
	return bus.Subscribe(nil, m.Observe)
}

// Observe updates the collectors for one event.
func (m *Metrics) Observe(event reporting.Event) {
	switch e := event.(type) {
	case *reporting.PortsChangedEvent:
		m.snapshots.Inc()
		m.ports.Set(float64(len(e.Ports)))
		open := 0
		for _, p := range e.Ports {
			if p.ExposedServed() {
				open++
			}
		}
		m.exposedPorts.Set(float64(open))
	case *reporting.PortExposedEvent:
		m.edges.Inc()
	case *reporting.ActionEvent:
		m.actions.WithLabelValues(e.Kind).Inc()
	case *reporting.NotificationEvent:
		m.notifications.WithLabelValues(e.Outcome).Inc()
	case *reporting.LoopStateEvent:
		if e.State == reporting.LoopConnected {
			m.sessions.WithLabelValues(e.Loop).Inc()
		} else if e.Condition != "" {
			m.streamErrors.WithLabelValues(e.Loop, e.Condition).Inc()
		}
	}
}

// Router serves /metrics and /healthz. health may be nil; a non-nil error
// from it turns /healthz into a 503.
func (m *Metrics) Router(health func() error) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// Serve runs handler on address until ctx ends.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info(subsystem, "Serving metrics on http://%s/metrics", lis.Addr())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
