// Package metrics exposes Prometheus collectors for task executions.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution status labels.
const (
	StatusSuccess     = "success"
	StatusSoftFailure = "soft_failure"
	StatusSpawnError  = "spawn_error"
	StatusTimeout     = "timeout"
	StatusCanceled    = "canceled"
	StatusPanic       = "panic"
)

// Metrics holds the executor collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	artifacts  prometheus.Counter
	active     prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same names. Any other registration error
// panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	executions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sparcflow",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Task executions by mode and final status.",
		},
		[]string{"mode", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sparcflow",
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of task executions.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"mode"},
	)
	artifacts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sparcflow",
			Subsystem: "executor",
			Name:      "artifacts_total",
			Help:      "Artifacts announced by successful executions.",
		},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sparcflow",
			Subsystem: "executor",
			Name:      "executions_active",
			Help:      "Model processes currently running.",
		},
	)

	register := func(c prometheus.Collector) prometheus.Collector {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return already.ExistingCollector
			}
			panic(err)
		}
		return c
	}

	return &Metrics{
		executions: register(executions).(*prometheus.CounterVec),
		duration:   register(duration).(*prometheus.HistogramVec),
		artifacts:  register(artifacts).(prometheus.Counter),
		active:     register(active).(prometheus.Gauge),
	}
}

// ObserveExecution records one finished execution.
func (m *Metrics) ObserveExecution(mode, status string, elapsed time.Duration, artifacts int) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(mode, status).Inc()
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if artifacts > 0 {
		m.artifacts.Add(float64(artifacts))
	}
}

// IncActive marks a model process as running.
func (m *Metrics) IncActive() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// DecActive marks a model process as finished.
func (m *Metrics) DecActive() {
	if m == nil {
		return
	}
	m.active.Dec()
}

// Serve exposes /metrics for g on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, g)
}

func serve(ctx context.Context, ln net.Listener, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
