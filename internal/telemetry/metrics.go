// Package telemetry exposes the ambient prometheus metrics every
// component can publish into, plus an HTTP server that serves them at
// /metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridkernel/internal/core"
)

var (
	// RiskHaltsTotal counts every transition into a halted state,
	// labeled by the reason string risk.Manager recorded.
	RiskHaltsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridkernel_risk_halts_total",
		Help: "Total number of times a risk manager entered a halted state.",
	}, []string{"reason"})

	// RiskDrawdownPct reports the latest (peak-current)/peak reading a
	// risk manager observed, labeled by bot name.
	RiskDrawdownPct = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridkernel_risk_drawdown_pct",
		Help: "Current drawdown from peak balance, as a fraction.",
	}, []string{"bot"})

	// WorkerPoolTasks reports a pkg/concurrency.WorkerPool's latest
	// Stats() snapshot, labeled by pool name and the stat's kind
	// (running_workers, idle_workers, submitted_tasks, waiting_tasks,
	// successful_tasks, failed_tasks).
	WorkerPoolTasks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridkernel_worker_pool_tasks",
		Help: "Latest worker pool task/worker counts, labeled by pool and stat kind.",
	}, []string{"pool", "stat"})
)

func init() {
	prometheus.MustRegister(RiskHaltsTotal, RiskDrawdownPct, WorkerPoolTasks)
}

// Server exposes the registered collectors over HTTP for a Prometheus
// scraper.
type Server struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewServer constructs a Server bound to port.
func NewServer(port int, logger core.ILogger) *Server {
	return &Server{
		port:   port,
		logger: logger.WithField("component", "telemetry_server"),
	}
}

// Start serves /metrics in a background goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("starting telemetry server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("telemetry server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping telemetry server")
	return s.srv.Shutdown(ctx)
}
