package application

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
)

type stubEscalationNotifier struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (s *stubEscalationNotifier) NotifyEscalated(_ context.Context, channel string, alarm alarms.Alarm, _ alarms.Severity, level int) error {
	s.mu.Lock()
	s.calls = append(s.calls, channel)
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
	return nil
}

func (s *stubEscalationNotifier) channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubRecorder struct {
	mu      sync.Mutex
	records []RecordEventInput
}

func (s *stubRecorder) RecordEvent(_ context.Context, input RecordEventInput) (alarms.AlarmHistory, error) {
	s.mu.Lock()
	s.records = append(s.records, input)
	s.mu.Unlock()
	return alarms.AlarmHistory{AlarmID: input.AlarmID, EventType: input.EventType}, nil
}

func (s *stubRecorder) events() []RecordEventInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordEventInput(nil), s.records...)
}

func newTestEscalation(t *testing.T, clock Clock, opts ...EscalationOption) (*EscalationEngine, *AlarmStore) {
	t.Helper()
	store := NewAlarmStore(WithStoreClock(clock))
	base := []EscalationOption{
		WithEscalationClock(clock),
		WithEscalationLogger(log.New(io.Discard, "", 0)),
	}
	engine, err := NewEscalationEngine(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new escalation engine: %v", err)
	}
	return engine, store
}

func immediateConfig() *alarms.EscalationConfig {
	return &alarms.EscalationConfig{
		Enabled:               true,
		EscalationTimeSeconds: 0,
		EscalateToSeverity:    alarms.SeverityCritical,
		MaxEscalationLevel:    1,
	}
}

func TestImmediateEscalationOnFirstTick(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	recorder := &stubRecorder{}
	engine, store := newTestEscalation(t, clock, WithEscalationRecorder(recorder))
	ctx := context.Background()

	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	engine.Register(alarm, immediateConfig())

	engine.Tick(ctx)

	got, _ := store.GetByID(alarm.ID)
	if got.Severity != alarms.SeverityCritical {
		t.Fatalf("expected critical after first tick, got %s", got.Severity)
	}
	if got.EscalationLevel != 1 {
		t.Fatalf("expected level 1, got %d", got.EscalationLevel)
	}

	events := recorder.events()
	if len(events) != 1 || events[0].EventType != alarms.HistoryEscalated {
		t.Fatalf("expected one escalated history record, got %+v", events)
	}
	if events[0].PreviousSeverity != alarms.SeverityWarning || events[0].NewSeverity != alarms.SeverityCritical {
		t.Fatalf("unexpected severities in record: %+v", events[0])
	}

	// Max level reached; a second tick is a no-op.
	engine.Tick(ctx)
	got, _ = store.GetByID(alarm.ID)
	if got.EscalationLevel != 1 {
		t.Fatalf("expected level to stay 1, got %d", got.EscalationLevel)
	}
	if len(recorder.events()) != 1 {
		t.Fatal("expected no second history record")
	}
}

func TestEscalationWaitsForDwell(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestEscalation(t, clock)
	ctx := context.Background()

	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	config := immediateConfig()
	config.EscalationTimeSeconds = 60
	config.MaxEscalationLevel = 2
	engine.Register(alarm, config)

	engine.Tick(ctx)
	got, _ := store.GetByID(alarm.ID)
	if got.EscalationLevel != 0 {
		t.Fatalf("expected no escalation before dwell, got level %d", got.EscalationLevel)
	}

	clock.Advance(60 * time.Second)
	engine.Tick(ctx)
	got, _ = store.GetByID(alarm.ID)
	if got.EscalationLevel != 1 {
		t.Fatalf("expected level 1 after dwell, got %d", got.EscalationLevel)
	}

	// The next level counts dwell from the previous escalation.
	clock.Advance(30 * time.Second)
	engine.Tick(ctx)
	got, _ = store.GetByID(alarm.ID)
	if got.EscalationLevel != 1 {
		t.Fatalf("expected level to hold at 1, got %d", got.EscalationLevel)
	}
	clock.Advance(30 * time.Second)
	engine.Tick(ctx)
	got, _ = store.GetByID(alarm.ID)
	if got.EscalationLevel != 2 {
		t.Fatalf("expected level 2, got %d", got.EscalationLevel)
	}
}

func TestAcknowledgedAlarmNeverEscalates(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestEscalation(t, clock)
	ctx := context.Background()

	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	engine.Register(alarm, immediateConfig())
	store.Acknowledge(ctx, alarm.ID, "chief")

	engine.Tick(ctx)

	got, _ := store.GetByID(alarm.ID)
	if got.EscalationLevel != 0 || got.Severity != alarms.SeverityWarning {
		t.Fatalf("acknowledged alarm escalated: %+v", got)
	}
	if engine.Registered(alarm.ID) {
		t.Fatal("expected stale state to be dropped")
	}
}

func TestRemoveStopsEscalation(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestEscalation(t, clock)
	ctx := context.Background()

	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	engine.Register(alarm, immediateConfig())
	if !engine.Registered(alarm.ID) {
		t.Fatal("expected alarm registered")
	}
	engine.Remove(alarm.ID)

	engine.Tick(ctx)
	got, _ := store.GetByID(alarm.ID)
	if got.EscalationLevel != 0 {
		t.Fatalf("expected no escalation after remove, got level %d", got.EscalationLevel)
	}
}

func TestDisabledConfigNotRegistered(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestEscalation(t, clock)
	alarm, _ := store.CreateAlarm(context.Background(), testInput("High Temp"))

	engine.Register(alarm, nil)
	engine.Register(alarm, &alarms.EscalationConfig{Enabled: false})
	if engine.Registered(alarm.ID) {
		t.Fatal("expected no state for disabled config")
	}
}

func TestEscalationNotifiesConfiguredChannels(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	notifier := &stubEscalationNotifier{done: make(chan struct{}, 2)}
	engine, store := newTestEscalation(t, clock, WithEscalationNotifier(notifier))
	ctx := context.Background()

	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	config := immediateConfig()
	config.Channels = []string{"webhook", "log"}
	engine.Register(alarm, config)

	engine.Tick(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-notifier.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notifications")
		}
	}
	channels := notifier.channels()
	if len(channels) != 2 || channels[0] != "webhook" || channels[1] != "log" {
		t.Fatalf("unexpected channel dispatch order: %v", channels)
	}
}
