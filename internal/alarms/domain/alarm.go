package alarms

import (
	"strings"
	"time"
)

const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusCleared      = "cleared"
)

// Severity is an ordered alarm severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering of a severity; unknown values rank below info.
func (s Severity) Rank() int {
	switch Severity(strings.TrimSpace(strings.ToLower(string(s)))) {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid returns true when the severity is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	default:
		return false
	}
}

// Source type labels used by trend aggregation.
const (
	SourceTypeSensor  = "sensor"
	SourceTypeEngine  = "engine"
	SourceTypeVessel  = "vessel"
	SourceTypeUnknown = "unknown"
)

// Alarm represents a triggered condition instance raised from a rule
// evaluation or a direct create call.
type Alarm struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Severity        Severity  `json:"severity"`
	Status          string    `json:"status"`
	VesselID        string    `json:"vessel_id,omitempty"`
	EngineID        string    `json:"engine_id,omitempty"`
	SensorID        string    `json:"sensor_id,omitempty"`
	RuleID          string    `json:"rule_id,omitempty"`
	TriggeredAt     time.Time `json:"triggered_at"`
	AcknowledgedAt  time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string    `json:"acknowledged_by,omitempty"`
	ClearedAt       time.Time `json:"cleared_at,omitempty"`
	ClearedBy       string    `json:"cleared_by,omitempty"`
	EscalationLevel int       `json:"escalation_level"`
	GroupID         string    `json:"group_id,omitempty"`
	SourceValue     float64   `json:"source_value,omitempty"`
	ThresholdValue  float64   `json:"threshold_value,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SourceType classifies the alarm by its most specific source reference.
func (a Alarm) SourceType() string {
	switch {
	case a.SensorID != "":
		return SourceTypeSensor
	case a.EngineID != "":
		return SourceTypeEngine
	case a.VesselID != "":
		return SourceTypeVessel
	default:
		return SourceTypeUnknown
	}
}

// SharesSource reports whether two alarms reference a common vessel, engine
// or sensor.
func (a Alarm) SharesSource(other Alarm) bool {
	if a.VesselID != "" && a.VesselID == other.VesselID {
		return true
	}
	if a.EngineID != "" && a.EngineID == other.EngineID {
		return true
	}
	if a.SensorID != "" && a.SensorID == other.SensorID {
		return true
	}
	return false
}
