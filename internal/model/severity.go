package model

// Severity is the importance level of a rule and the alerts it produces.
// The ordering low < medium < high < critical is total and is used for
// reporting only, never for suppressing delivery.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all severities in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the position of s in the severity order, or -1 for an
// unknown severity.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() >= 0 }
