// Package app coordinates the serve-mode components: the poll loop, the
// Prometheus exporter, and telemetry.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cboxdk/phpfpm-pool-check/internal/check"
	"github.com/cboxdk/phpfpm-pool-check/internal/config"
	"github.com/cboxdk/phpfpm-pool-check/internal/exporter"
	"github.com/cboxdk/phpfpm-pool-check/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager coordinates the serve-mode components
type Manager struct {
	config  *config.Config
	logger  *zap.Logger
	checker *check.Checker

	exporter         *exporter.Exporter
	telemetryService *telemetry.Service

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// NewManager wires the components for serve mode from a validated
// configuration.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	telemetryService, err := telemetry.NewService(cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry service: %w", err)
	}

	checker, err := check.NewChecker(
		cfg.Pool.SocketPath,
		cfg.Pool.StatusPath,
		cfg.Pool.Timeout,
		cfg.Thresholds.Thresholds(),
		logger.Named("checker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checker: %w", err)
	}

	exp, err := exporter.NewExporter(cfg.Server, logger.Named("exporter"))
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	return &Manager{
		config:           cfg,
		logger:           logger,
		checker:          checker,
		exporter:         exp,
		telemetryService: telemetryService,
	}, nil
}

// Run starts the exporter and the poll loop and blocks until the context
// is canceled or a component fails.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("manager is already running")
	}
	m.running = true
	m.startTime = time.Now()
	m.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.logger.Info("Starting Prometheus exporter")
		return m.exporter.Start(gCtx)
	})

	g.Go(func() error {
		return m.pollLoop(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return m.exporter.Stop(gCtx)
	})

	m.logger.Info("Manager started",
		zap.String("socket", m.config.Pool.SocketPath),
		zap.Duration("poll_interval", m.config.Monitoring.PollInterval))

	err := g.Wait()

	if stopErr := m.telemetryService.Stop(context.Background()); stopErr != nil {
		m.logger.Error("Failed to stop telemetry service", zap.Error(stopErr))
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	if err != nil && err != context.Canceled {
		m.logger.Error("Manager stopped with error", zap.Error(err))
		return err
	}

	m.logger.Info("Manager stopped gracefully",
		zap.Duration("uptime", time.Since(m.startTime)))
	return nil
}

// pollLoop re-checks the pool on every tick and feeds the exporter. A
// failed exchange is not retried within a tick; the next tick is the
// retry.
func (m *Manager) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.config.Monitoring.PollInterval)
	defer ticker.Stop()

	// First poll immediately so the exporter has data before the first
	// scrape.
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	snapshot, verdict := m.checker.Run(ctx)
	m.exporter.Observe(snapshot, verdict)

	m.logger.Debug("Pool polled",
		zap.String("severity", verdict.Severity.String()),
		zap.String("message", verdict.Message))
}
