// Package check evaluates PHP-FPM pool status metrics against configured
// thresholds and produces a monitoring verdict.
package check

import "fmt"

// Severity is the outcome class of a pool check, following the standard
// monitoring-plugin contract where the exit code equals the severity.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityUnknown
)

// String returns the conventional upper-case severity label.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// ExitCode returns the monitoring-plugin exit code for the severity:
// OK=0, WARNING=1, CRITICAL=2, UNKNOWN=3.
func (s Severity) ExitCode() int {
	if s < SeverityOK || s > SeverityUnknown {
		return SeverityUnknown.ExitCode()
	}
	return int(s)
}

// Verdict is the result of one pool check: a severity, a human-facing
// message carrying the raw values, and the metric that decided the
// outcome (empty for OK and for failed checks).
type Verdict struct {
	Severity Severity
	Message  string
	Metric   string
	Value    string
}

// String formats the verdict the way monitoring systems display plugin
// output: "SEVERITY: message".
func (v Verdict) String() string {
	return fmt.Sprintf("%s: %s", v.Severity, v.Message)
}

// Unknown builds the verdict for a check that failed before producing a
// metrics-based result, preserving the cause for operator visibility.
func Unknown(err error) Verdict {
	return Verdict{
		Severity: SeverityUnknown,
		Message:  err.Error(),
	}
}
