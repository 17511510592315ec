package application

import (
	"context"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
)

// Lifecycle event types published by the store.
const (
	EventCreated      = "created"
	EventAcknowledged = "acknowledged"
	EventCleared      = "cleared"
)

// AlarmEvent represents a lifecycle update.
type AlarmEvent struct {
	Type  string       `json:"type"`
	Alarm alarms.Alarm `json:"alarm"`
}

// AlarmNotifier consumes alarm lifecycle events. Delivery is synchronous
// and in registration order within the mutation that produced the event.
type AlarmNotifier interface {
	Notify(ctx context.Context, event AlarmEvent)
}

// NotifierFunc adapts a function to AlarmNotifier.
type NotifierFunc func(ctx context.Context, event AlarmEvent)

// Notify implements AlarmNotifier.
func (f NotifierFunc) Notify(ctx context.Context, event AlarmEvent) {
	if f != nil {
		f(ctx, event)
	}
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
