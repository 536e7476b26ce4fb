// Package exporter serves the pool's status metrics and the latest check
// verdict in Prometheus format.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cboxdk/phpfpm-pool-check/internal/check"
	"github.com/cboxdk/phpfpm-pool-check/internal/config"
	"github.com/cboxdk/phpfpm-pool-check/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Exporter exposes pool metrics in Prometheus format
type Exporter struct {
	config config.ServerConfig
	logger *zap.Logger

	server   *http.Server
	registry *prometheus.Registry

	// Rate limiting for the HTTP endpoints
	rateLimiter *rate.Limiter

	// Pool gauges, updated after every poll
	poolUp             prometheus.Gauge
	listenQueue        prometheus.Gauge
	maxListenQueue     prometheus.Gauge
	idleProcesses      prometheus.Gauge
	activeProcesses    prometheus.Gauge
	totalProcesses     prometheus.Gauge
	maxActiveProcesses prometheus.Gauge
	acceptedConn       prometheus.Gauge
	slowRequests       prometheus.Gauge
	maxChildrenReached prometheus.Gauge
	poolUtilization    prometheus.Gauge
	checkSeverity      prometheus.Gauge
	scrapeFailures     prometheus.Counter

	mu          sync.RWMutex
	lastVerdict check.Verdict
	running     bool
}

// NewExporter creates a new Prometheus exporter
func NewExporter(cfg config.ServerConfig, logger *zap.Logger) (*Exporter, error) {
	e := &Exporter{
		config:      cfg,
		logger:      logger,
		registry:    prometheus.NewRegistry(),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		lastVerdict: check.Verdict{Severity: check.SeverityUnknown, Message: "no check performed yet"},
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return e, nil
}

func (e *Exporter) initMetrics() error {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	e.poolUp = gauge("phpfpm_up", "Whether the last pool status query succeeded (1) or failed (0)")
	e.listenQueue = gauge("phpfpm_listen_queue", "Requests waiting in the listen queue")
	e.maxListenQueue = gauge("phpfpm_max_listen_queue", "Maximum listen queue depth seen by the pool")
	e.idleProcesses = gauge("phpfpm_idle_processes", "Idle worker processes")
	e.activeProcesses = gauge("phpfpm_active_processes", "Active worker processes")
	e.totalProcesses = gauge("phpfpm_total_processes", "Total worker processes")
	e.maxActiveProcesses = gauge("phpfpm_max_active_processes", "Maximum active processes seen by the pool")
	e.acceptedConn = gauge("phpfpm_accepted_connections", "Connections accepted by the pool")
	e.slowRequests = gauge("phpfpm_slow_requests", "Requests that exceeded request_slowlog_timeout")
	e.maxChildrenReached = gauge("phpfpm_max_children_reached", "Times the pool hit pm.max_children")
	e.poolUtilization = gauge("phpfpm_pool_utilization_percent", "Active workers as a percentage of total workers")
	e.checkSeverity = gauge("phpfpm_check_severity", "Latest check verdict: 0=ok 1=warning 2=critical 3=unknown")

	e.scrapeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "phpfpm_scrape_failures_total",
		Help: "Pool status queries that failed",
	})

	collectors := []prometheus.Collector{
		e.poolUp, e.listenQueue, e.maxListenQueue, e.idleProcesses,
		e.activeProcesses, e.totalProcesses, e.maxActiveProcesses,
		e.acceptedConn, e.slowRequests, e.maxChildrenReached,
		e.poolUtilization, e.checkSeverity, e.scrapeFailures,
	}
	for _, c := range collectors {
		if err := e.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe records the outcome of one poll. A nil snapshot means the
// exchange failed; the gauges keep their last values and only the
// availability and failure metrics move.
func (e *Exporter) Observe(snapshot status.Snapshot, verdict check.Verdict) {
	e.mu.Lock()
	e.lastVerdict = verdict
	e.mu.Unlock()

	e.checkSeverity.Set(float64(verdict.Severity.ExitCode()))

	if snapshot == nil {
		e.poolUp.Set(0)
		e.scrapeFailures.Inc()
		return
	}
	e.poolUp.Set(1)

	e.setFromSnapshot(e.listenQueue, snapshot, status.MetricListenQueue)
	e.setFromSnapshot(e.maxListenQueue, snapshot, status.MetricMaxListenQueue)
	e.setFromSnapshot(e.idleProcesses, snapshot, status.MetricIdleProcesses)
	e.setFromSnapshot(e.activeProcesses, snapshot, status.MetricActiveProcesses)
	e.setFromSnapshot(e.totalProcesses, snapshot, status.MetricTotalProcesses)
	e.setFromSnapshot(e.maxActiveProcesses, snapshot, status.MetricMaxActiveProcs)
	e.setFromSnapshot(e.acceptedConn, snapshot, status.MetricAcceptedConn)
	e.setFromSnapshot(e.slowRequests, snapshot, status.MetricSlowRequests)
	e.setFromSnapshot(e.maxChildrenReached, snapshot, status.MetricMaxChildren)

	active, errA := snapshot.Int(status.MetricActiveProcesses)
	total, errT := snapshot.Int(status.MetricTotalProcesses)
	if errA == nil && errT == nil && total > 0 {
		e.poolUtilization.Set(float64(active) / float64(total) * 100)
	}
}

// setFromSnapshot updates a gauge from a snapshot metric, skipping
// metrics the pool did not report.
func (e *Exporter) setFromSnapshot(g prometheus.Gauge, snapshot status.Snapshot, name string) {
	n, err := snapshot.Int(name)
	if err != nil {
		e.logger.Debug("Skipping unexported metric", zap.String("metric", name), zap.Error(err))
		return
	}
	g.Set(float64(n))
}

// rateLimitMiddleware protects an endpoint from scrape storms
func (e *Exporter) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !e.rateLimiter.Allow() {
			e.logger.Warn("Rate limit exceeded",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))

			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthHandler reports the latest verdict as JSON. The HTTP status is
// 200 unless the last check came back CRITICAL or UNKNOWN.
func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	e.mu.RLock()
	verdict := e.lastVerdict
	e.mu.RUnlock()

	code := http.StatusOK
	if verdict.Severity == check.SeverityCritical || verdict.Severity == check.SeverityUnknown {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  verdict.Severity.String(),
		"message": verdict.Message,
	})
}

// Start serves metrics until Stop shuts the listener down. It blocks,
// so callers run it on its own goroutine.
func (e *Exporter) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("exporter is already running")
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Starting Prometheus exporter",
		zap.String("bind_address", e.config.BindAddress),
		zap.String("metrics_path", e.config.MetricsPath))

	mux := http.NewServeMux()

	metricsHandler := promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(e.logger),
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux.Handle(e.config.MetricsPath, e.rateLimitMiddleware(metricsHandler))
	mux.Handle(e.config.HealthPath, e.rateLimitMiddleware(http.HandlerFunc(e.healthHandler)))

	e.server = &http.Server{
		Addr:         e.config.BindAddress,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := e.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("exporter server failed: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down gracefully
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.server == nil {
		return nil
	}
	e.running = false

	// The caller's ctx is usually already canceled at shutdown time.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.server.Shutdown(shutdownCtx)
}
