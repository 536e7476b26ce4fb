// Package status turns the raw CGI payload from a PHP-FPM status query
// into a metrics snapshot.
package status

import (
	"fmt"
	"strconv"
	"strings"
)

// Metric names the pool reports that this tool consumes by name.
const (
	MetricListenQueue     = "listen queue"
	MetricActiveProcesses = "active processes"
	MetricTotalProcesses  = "total processes"
	MetricIdleProcesses   = "idle processes"
	MetricAcceptedConn    = "accepted conn"
	MetricSlowRequests    = "slow requests"
	MetricMaxChildren     = "max children reached"
	MetricMaxListenQueue  = "max listen queue"
	MetricMaxActiveProcs  = "max active processes"
)

// Snapshot is a read-only mapping of metric name to its raw value, built
// once per query.
type Snapshot map[string]string

// Parse converts a raw CGI response payload into a Snapshot.
//
// The payload is CGI output: a header block and a text body separated by a
// blank line; only the body matters. Each body line has the form
// "key:   value", split on the first colon. The value part is then split
// on whitespace and the entry is set to each token in turn, so only the
// last token survives for multi-word values.
//
// That last-token-wins rule is intentional: the numeric fields consumed
// downstream are single tokens, and multi-word fields such as "start time"
// are not relied on. Lines without a colon are skipped; the parser never
// fails, it just leaves unknown metrics absent.
func Parse(payload []byte) Snapshot {
	body := string(payload)
	if _, rest, found := strings.Cut(body, "\r\n\r\n"); found {
		body = rest
	}

	snapshot := make(Snapshot)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		key, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		for _, token := range strings.Fields(rest) {
			snapshot[key] = token
		}
	}
	return snapshot
}

// Int returns the named metric as an integer. A missing or non-numeric
// value is an error; it is never silently treated as zero.
func (s Snapshot) Int(name string) (int, error) {
	raw, ok := s[name]
	if !ok {
		return 0, fmt.Errorf("metric %q missing from pool status", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("metric %q has non-numeric value %q", name, raw)
	}
	return n, nil
}
