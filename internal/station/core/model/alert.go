package model

import "time"

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is a transient, self-expiring user notification.
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// SeverityFromStatusText maps a MAVLink STATUSTEXT severity (0 emergency
// through 7 debug) onto alert severities.
func SeverityFromStatusText(sev int) Severity {
	switch {
	case sev <= 3:
		return SeverityError
	case sev == 4:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
