package interfaces

import (
	"context"
	"errors"

	"vesselwatch/internal/alarms/application"
	"vesselwatch/internal/telemetry/events"
)

// TelemetryConsumer adapts telemetry events into rule evaluation.
type TelemetryConsumer struct {
	app *application.Service
}

// NewTelemetryConsumer constructs a consumer adapter.
func NewTelemetryConsumer(app *application.Service) (*TelemetryConsumer, error) {
	if app == nil {
		return nil, errors.New("telemetry consumer: nil app service")
	}
	return &TelemetryConsumer{app: app}, nil
}

// ConsumeSensorSample feeds a sensor reading into rule evaluation.
func (c *TelemetryConsumer) ConsumeSensorSample(ctx context.Context, event events.SensorSampleReceived) error {
	if event.SensorID == "" {
		return errors.New("telemetry consumer: empty sensor id")
	}
	c.app.EvaluateSensorValue(ctx, event.SensorID, event.Value, event.VesselID, event.EngineID)
	return nil
}

// ConsumeEngineStatus feeds an engine status report into rule evaluation.
func (c *TelemetryConsumer) ConsumeEngineStatus(ctx context.Context, event events.EngineStatusReceived) error {
	if event.EngineID == "" {
		return errors.New("telemetry consumer: empty engine id")
	}
	c.app.EvaluateEngineStatus(ctx, event.EngineID, event.Status, event.Metrics, event.VesselID)
	return nil
}
