package alarms

import "time"

// History event types.
const (
	HistoryCreated      = "created"
	HistoryAcknowledged = "acknowledged"
	HistoryEscalated    = "escalated"
	HistoryCleared      = "cleared"
	HistoryGrouped      = "grouped"
	HistoryCorrelated   = "correlated"
	HistorySuppressed   = "suppressed"
)

// AlarmHistory is an immutable, append-only record of one alarm lifecycle
// event.
type AlarmHistory struct {
	ID               string    `json:"id"`
	AlarmID          string    `json:"alarm_id"`
	EventType        string    `json:"event_type"`
	Timestamp        time.Time `json:"timestamp"`
	UserID           string    `json:"user_id,omitempty"`
	Details          string    `json:"details,omitempty"`
	PreviousSeverity Severity  `json:"previous_severity,omitempty"`
	NewSeverity      Severity  `json:"new_severity,omitempty"`
	SourceValue      float64   `json:"source_value,omitempty"`
	ThresholdValue   float64   `json:"threshold_value,omitempty"`
}

// FrequentAlarm is one entry of a trend's most-frequent list.
type FrequentAlarm struct {
	Title      string  `json:"title"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AlarmTrend is a derived aggregate over a [start, end) window.
type AlarmTrend struct {
	Start                  time.Time        `json:"start"`
	End                    time.Time        `json:"end"`
	TotalAlarms            int              `json:"total_alarms"`
	AlarmsBySeverity       map[Severity]int `json:"alarms_by_severity"`
	AlarmsBySourceType     map[string]int   `json:"alarms_by_source_type"`
	AverageAcknowledgeTime time.Duration    `json:"average_acknowledge_time"`
	AverageClearTime       time.Duration    `json:"average_clear_time"`
	MostFrequentAlarms     []FrequentAlarm  `json:"most_frequent_alarms"`
}
