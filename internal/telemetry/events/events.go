package events

import "time"

// SensorSampleReceived is raised when a sensor reports a reading.
type SensorSampleReceived struct {
	SensorID   string    `json:"sensor_id"`
	VesselID   string    `json:"vessel_id,omitempty"`
	EngineID   string    `json:"engine_id,omitempty"`
	Value      float64   `json:"value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EngineStatusReceived is raised when an engine reports its status and
// current metrics.
type EngineStatusReceived struct {
	EngineID   string             `json:"engine_id"`
	VesselID   string             `json:"vessel_id,omitempty"`
	Status     string             `json:"status"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}
