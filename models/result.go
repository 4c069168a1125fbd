package models

import "time"

// Severity follows the Nagios plugin convention. The numeric values are the
// process exit codes.
type Severity int

const (
	SeverityOK       Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
	SeverityUnknown  Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode maps the severity to the monitoring framework's ordinal code.
func (s Severity) ExitCode() int {
	return int(s)
}

// Max returns the more severe of two severities.
func (s Severity) Max(other Severity) Severity {
	if other > s {
		return other
	}
	return s
}

// CheckResult is the outcome of one check run.
type CheckResult struct {
	RunID    int64            `json:"run_id"`
	At       time.Time        `json:"at"`
	Severity Severity         `json:"severity"`
	Message  string           `json:"message"`
	Critical map[string]int64 `json:"critical,omitempty"`
	Warning  map[string]int64 `json:"warning,omitempty"`
}
