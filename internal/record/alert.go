package record

import "time"

// Severity orders alerts from most to least urgent.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeveritySuccess  Severity = "success"
	SeverityInfo     Severity = "info"
)

// Rank returns the ordering weight of a severity. Unknown severities rank
// below info so malformed input never outranks real alerts.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeveritySuccess:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// Alert is a notification raised by the upstream feed or rule evaluation.
// Acknowledged is monotonic: a fresh upstream emission with the same ID is a
// new object, not a mutation of the old one.
type Alert struct {
	ID             string     `json:"id"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Instrument     string     `json:"instrument,omitempty"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Key implements cache.Entry.
func (a Alert) Key() string { return a.ID }
