package check

import (
	"fmt"
	"strconv"

	"github.com/cboxdk/phpfpm-pool-check/internal/status"
)

// Evaluate maps a status snapshot to a verdict under the given thresholds.
//
// The listen queue is judged first and short-circuits: if it crosses a
// threshold, worker utilization is not evaluated at all. Within each
// metric the critical bound is checked before the warning bound, so a
// value meeting both resolves to CRITICAL.
//
// Evaluate is a pure function: it performs no I/O and never panics on bad
// input. A missing or non-numeric required metric, or a pool reporting
// zero total processes, yields an UNKNOWN verdict and a MetricError.
func Evaluate(snapshot status.Snapshot, thresholds Thresholds) (Verdict, error) {
	listenQueue, err := snapshot.Int(status.MetricListenQueue)
	if err != nil {
		return Unknown(err), &MetricError{Err: err}
	}
	active, err := snapshot.Int(status.MetricActiveProcesses)
	if err != nil {
		return Unknown(err), &MetricError{Err: err}
	}
	total, err := snapshot.Int(status.MetricTotalProcesses)
	if err != nil {
		return Unknown(err), &MetricError{Err: err}
	}

	switch {
	case listenQueue >= thresholds.QueueCritical:
		return queueVerdict(SeverityCritical, listenQueue), nil
	case listenQueue >= thresholds.QueueWarning:
		return queueVerdict(SeverityWarning, listenQueue), nil
	}

	if total == 0 {
		err := fmt.Errorf("pool reports zero total processes, cannot compute utilization")
		return Unknown(err), &MetricError{Err: err}
	}
	utilization := float64(active) / float64(total) * 100

	switch {
	case utilization >= float64(thresholds.UtilizationCritical):
		return utilizationVerdict(SeverityCritical, utilization, active, total), nil
	case utilization >= float64(thresholds.UtilizationWarning):
		return utilizationVerdict(SeverityWarning, utilization, active, total), nil
	}

	return Verdict{
		Severity: SeverityOK,
		Message: fmt.Sprintf("pool healthy: %d requests in queue, %d/%d active workers (%.1f%% utilization)",
			listenQueue, active, total, utilization),
	}, nil
}

func queueVerdict(severity Severity, listenQueue int) Verdict {
	return Verdict{
		Severity: severity,
		Message:  fmt.Sprintf("listen queue has %d pending requests", listenQueue),
		Metric:   status.MetricListenQueue,
		Value:    strconv.Itoa(listenQueue),
	}
}

func utilizationVerdict(severity Severity, utilization float64, active, total int) Verdict {
	return Verdict{
		Severity: severity,
		Message:  fmt.Sprintf("worker utilization at %.1f%% (%d/%d active)", utilization, active, total),
		Metric:   status.MetricActiveProcesses,
		Value:    fmt.Sprintf("%.1f", utilization),
	}
}
