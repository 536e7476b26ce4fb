package check

import (
	"errors"
	"fmt"
)

// Defaults carried over from the plugin this tool replaces.
const (
	DefaultQueueWarning        = 5
	DefaultQueueCritical       = 10
	DefaultUtilizationWarning  = 70
	DefaultUtilizationCritical = 90
)

// Error categories for the evaluation side of a check.
var (
	// ErrConfig indicates an invalid threshold configuration. It is
	// detected before any network I/O happens.
	ErrConfig = errors.New("invalid threshold configuration")

	// ErrMetric indicates a required pool metric is missing, is not a
	// number, or reports zero total processes.
	ErrMetric = errors.New("pool metric unusable")
)

// ConfigError reports which threshold field is invalid and why.
type ConfigError struct {
	Field   string
	Value   int
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("threshold %s=%d: %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// MetricError wraps a snapshot access failure.
type MetricError struct {
	Err error
}

func (e *MetricError) Error() string {
	return e.Err.Error()
}

func (e *MetricError) Unwrap() []error {
	return []error{ErrMetric, e.Err}
}

// Thresholds holds the two independent warning/critical pairs a pool is
// judged against: requests waiting in the listen queue, and the share of
// workers that are busy.
type Thresholds struct {
	QueueWarning        int
	QueueCritical       int
	UtilizationWarning  int
	UtilizationCritical int
}

// DefaultThresholds returns the stock thresholds: queue 5/10, worker
// utilization 70%/90%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QueueWarning:        DefaultQueueWarning,
		QueueCritical:       DefaultQueueCritical,
		UtilizationWarning:  DefaultUtilizationWarning,
		UtilizationCritical: DefaultUtilizationCritical,
	}
}

// Validate rejects threshold sets that cannot produce a coherent verdict:
// warning must be strictly below critical for both pairs, queue bounds
// must be non-negative, and utilization bounds must lie within [0,100].
func (t Thresholds) Validate() error {
	if t.QueueWarning < 0 {
		return &ConfigError{Field: "queue_warning", Value: t.QueueWarning, Message: "must be non-negative"}
	}
	if t.QueueWarning >= t.QueueCritical {
		return &ConfigError{Field: "queue_warning", Value: t.QueueWarning, Message: fmt.Sprintf("must be less than queue_critical (%d)", t.QueueCritical)}
	}
	if t.UtilizationWarning < 0 || t.UtilizationWarning > 100 {
		return &ConfigError{Field: "utilization_warning", Value: t.UtilizationWarning, Message: "must be between 0 and 100"}
	}
	if t.UtilizationCritical < 0 || t.UtilizationCritical > 100 {
		return &ConfigError{Field: "utilization_critical", Value: t.UtilizationCritical, Message: "must be between 0 and 100"}
	}
	if t.UtilizationWarning >= t.UtilizationCritical {
		return &ConfigError{Field: "utilization_warning", Value: t.UtilizationWarning, Message: fmt.Sprintf("must be less than utilization_critical (%d)", t.UtilizationCritical)}
	}
	return nil
}
