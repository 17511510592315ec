package alarms

import "time"

const (
	GroupStatusActive       = "active"
	GroupStatusAcknowledged = "acknowledged"
	GroupStatusResolved     = "resolved"
)

// AlarmGroup clusters related alarms under one manageable unit.
// Membership is append-only while the group is active.
type AlarmGroup struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Strategy  GroupingStrategy `json:"strategy"`
	AlarmIDs  []string         `json:"alarm_ids"`
	CreatedAt time.Time        `json:"created_at"`
	Status    string           `json:"status"`
}

// SeedAlarmID returns the defining (first) member of the group.
func (g AlarmGroup) SeedAlarmID() string {
	if len(g.AlarmIDs) == 0 {
		return ""
	}
	return g.AlarmIDs[0]
}

// WithinWindow reports whether the group is still open for new members at
// the given time.
func (g AlarmGroup) WithinWindow(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(g.CreatedAt) <= window
}
