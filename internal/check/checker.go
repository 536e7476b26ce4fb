package check

import (
	"context"
	"time"

	"github.com/cboxdk/phpfpm-pool-check/internal/fcgi"
	"github.com/cboxdk/phpfpm-pool-check/internal/status"
	"github.com/cboxdk/phpfpm-pool-check/internal/telemetry"
	"go.uber.org/zap"
)

// Defaults carried over from the plugin this tool replaces, except the
// timeout which follows the runtime manager's FastCGI client.
const (
	DefaultSocketPath = "/run/php-fpm/www.sock"
	DefaultStatusPath = "/status"
	DefaultTimeout    = 5 * time.Second

	// requestID is fixed: one request per connection, no multiplexing.
	requestID = 1
)

// Checker runs the full pipeline for one pool: build the FastCGI request,
// exchange it over the unix socket, parse the status payload, and judge
// it against the thresholds. A Checker holds no per-invocation state and
// is safe to reuse across polls.
type Checker struct {
	socketPath string
	statusPath string
	timeout    time.Duration
	thresholds Thresholds
	logger     *zap.Logger
	tracer     *telemetry.TraceHelper
}

// NewChecker validates the thresholds and returns a ready checker.
// Threshold validation happens here, before any socket is touched.
func NewChecker(socketPath, statusPath string, timeout time.Duration, thresholds Thresholds, logger *zap.Logger) (*Checker, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	return &Checker{
		socketPath: socketPath,
		statusPath: statusPath,
		timeout:    timeout,
		thresholds: thresholds,
		logger:     logger,
		tracer:     telemetry.NewTraceHelper("phpfpm-pool-check"),
	}, nil
}

// Query performs one FastCGI status exchange and returns the parsed
// snapshot. The socket is closed on every path.
func (c *Checker) Query(ctx context.Context) (status.Snapshot, error) {
	var snapshot status.Snapshot

	err := c.tracer.TraceFastCGIRequestFunc(ctx, c.socketPath, c.statusPath, func(ctx context.Context) error {
		client, err := fcgi.DialTimeout(c.socketPath, c.timeout, c.logger.Named("fcgi-client"))
		if err != nil {
			return err
		}
		defer client.Close()

		records := append(
			[]fcgi.Record{fcgi.BuildBeginRequest(requestID)},
			fcgi.BuildParams(requestID, fcgi.StatusParams(c.statusPath))...,
		)
		if err := client.Send(records...); err != nil {
			return err
		}

		payload, err := client.ReadResponse()
		if err != nil {
			return err
		}

		snapshot = status.Parse(payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Parsed pool status",
		zap.String("socket", c.socketPath),
		zap.Int("metrics", len(snapshot)))

	return snapshot, nil
}

// Run performs one complete check. It never returns an error: a failed
// exchange or an unusable snapshot becomes an UNKNOWN verdict with the
// cause in the message, per the monitoring-plugin contract. The snapshot
// is returned alongside for callers that export the raw metrics; it is
// nil when the exchange failed.
func (c *Checker) Run(ctx context.Context) (status.Snapshot, Verdict) {
	var (
		snapshot status.Snapshot
		verdict  Verdict
	)

	_ = c.tracer.TracePoolCheckFunc(ctx, c.socketPath, func(ctx context.Context) (string, error) {
		var err error
		snapshot, err = c.Query(ctx)
		if err != nil {
			c.logger.Warn("Pool status query failed",
				zap.String("socket", c.socketPath),
				zap.Error(err))
			verdict = Unknown(err)
			return verdict.Severity.String(), err
		}

		verdict, err = Evaluate(snapshot, c.thresholds)
		if err != nil {
			c.logger.Warn("Pool status evaluation failed",
				zap.String("socket", c.socketPath),
				zap.Error(err))
		}
		return verdict.Severity.String(), err
	})

	return snapshot, verdict
}

// Thresholds returns the validated thresholds the checker judges against.
func (c *Checker) Thresholds() Thresholds {
	return c.thresholds
}
