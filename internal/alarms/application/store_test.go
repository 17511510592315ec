package application

import (
	"context"
	"sync"
	"testing"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
)

// fakeClock is a manually advanced clock shared by the engine tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testInput(title string) CreateAlarmInput {
	return CreateAlarmInput{
		Title:       title,
		Severity:    alarms.SeverityWarning,
		VesselID:    "vessel-1",
		EngineID:    "engine-1",
		SensorID:    "sensor-1",
		RuleID:      "rule-1",
		SourceValue: 120,
	}
}

func TestCreateAlarmStartsActive(t *testing.T) {
	store := NewAlarmStore()
	alarm, err := store.CreateAlarm(context.Background(), testInput("High Temp"))
	if err != nil {
		t.Fatalf("create alarm: %v", err)
	}
	if alarm.ID == "" {
		t.Fatal("expected generated id")
	}
	if alarm.Status != alarms.StatusActive {
		t.Fatalf("expected active, got %s", alarm.Status)
	}
	if alarm.TriggeredAt.IsZero() {
		t.Fatal("expected triggered timestamp")
	}
	if got := len(store.GetActive()); got != 1 {
		t.Fatalf("expected 1 active alarm, got %d", got)
	}
}

func TestCreateAlarmValidation(t *testing.T) {
	store := NewAlarmStore()
	if _, err := store.CreateAlarm(context.Background(), CreateAlarmInput{Severity: alarms.SeverityWarning}); err == nil {
		t.Fatal("expected empty title error")
	}
	if _, err := store.CreateAlarm(context.Background(), CreateAlarmInput{Title: "x", Severity: "loud"}); err == nil {
		t.Fatal("expected invalid severity error")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()
	alarm, err := store.CreateAlarm(ctx, testInput("High Temp"))
	if err != nil {
		t.Fatalf("create alarm: %v", err)
	}

	if !store.Acknowledge(ctx, alarm.ID, "chief") {
		t.Fatal("expected acknowledge to succeed")
	}
	if store.Acknowledge(ctx, alarm.ID, "chief") {
		t.Fatal("expected second acknowledge to fail")
	}
	got, _ := store.GetByID(alarm.ID)
	if got.Status != alarms.StatusAcknowledged || got.AcknowledgedBy != "chief" {
		t.Fatalf("unexpected state after ack: %+v", got)
	}

	if !store.Clear(ctx, alarm.ID, "chief") {
		t.Fatal("expected clear from acknowledged to succeed")
	}
	if store.Clear(ctx, alarm.ID, "chief") {
		t.Fatal("expected second clear to fail")
	}
	got, ok := store.GetByID(alarm.ID)
	if !ok {
		t.Fatal("cleared alarm must remain queryable")
	}
	if got.Status != alarms.StatusCleared {
		t.Fatalf("expected cleared, got %s", got.Status)
	}
	if len(store.GetActive()) != 0 {
		t.Fatal("expected no active alarms")
	}
	if len(store.GetAll()) != 1 {
		t.Fatal("expected cleared alarm in GetAll")
	}
}

func TestClearDirectlyFromActive(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()
	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	if !store.Clear(ctx, alarm.ID, "auto") {
		t.Fatal("expected clear from active to succeed")
	}
}

func TestUnknownAlarmOperationsFail(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()
	if store.Acknowledge(ctx, "missing", "x") {
		t.Fatal("expected ack of unknown alarm to fail")
	}
	if store.Clear(ctx, "missing", "x") {
		t.Fatal("expected clear of unknown alarm to fail")
	}
	if _, ok := store.Escalate(ctx, "missing", alarms.SeverityCritical, 1); ok {
		t.Fatal("expected escalate of unknown alarm to fail")
	}
}

func TestEventsDeliveredInOrder(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()

	var events []string
	store.Subscribe(NotifierFunc(func(_ context.Context, event AlarmEvent) {
		events = append(events, "first:"+event.Type)
	}))
	store.Subscribe(NotifierFunc(func(_ context.Context, event AlarmEvent) {
		events = append(events, "second:"+event.Type)
	}))

	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))
	store.Acknowledge(ctx, alarm.ID, "chief")
	store.Clear(ctx, alarm.ID, "chief")

	want := []string{
		"first:created", "second:created",
		"first:acknowledged", "second:acknowledged",
		"first:cleared", "second:cleared",
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(events), events)
	}
	for i, event := range want {
		if events[i] != event {
			t.Fatalf("event %d: expected %s, got %s", i, event, events[i])
		}
	}
}

func TestSubscriberMayMutateDuringDelivery(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()

	store.Subscribe(NotifierFunc(func(ctx context.Context, event AlarmEvent) {
		if event.Type == EventCreated {
			if !store.AssignGroup(ctx, event.Alarm.ID, "group-1") {
				t.Error("expected in-callback group assignment to succeed")
			}
		}
	}))

	alarm, err := store.CreateAlarm(ctx, testInput("High Temp"))
	if err != nil {
		t.Fatalf("create alarm: %v", err)
	}
	if alarm.GroupID != "group-1" {
		t.Fatalf("expected returned alarm to carry group, got %q", alarm.GroupID)
	}
}

func TestEscalateRaisesButNeverLowers(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()
	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))

	escalated, ok := store.Escalate(ctx, alarm.ID, alarms.SeverityCritical, 1)
	if !ok {
		t.Fatal("expected escalation to succeed")
	}
	if escalated.Severity != alarms.SeverityCritical || escalated.EscalationLevel != 1 {
		t.Fatalf("unexpected escalation result: %+v", escalated)
	}

	escalated, ok = store.Escalate(ctx, alarm.ID, alarms.SeverityInfo, 2)
	if !ok {
		t.Fatal("expected second escalation to succeed")
	}
	if escalated.Severity != alarms.SeverityCritical {
		t.Fatalf("severity must not be lowered, got %s", escalated.Severity)
	}
	if escalated.EscalationLevel != 2 {
		t.Fatalf("expected level 2, got %d", escalated.EscalationLevel)
	}

	store.Acknowledge(ctx, alarm.ID, "chief")
	if _, ok := store.Escalate(ctx, alarm.ID, alarms.SeverityCritical, 3); ok {
		t.Fatal("acknowledged alarm must not escalate")
	}
}

func TestAssignGroupExclusive(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()
	alarm, _ := store.CreateAlarm(ctx, testInput("High Temp"))

	if !store.AssignGroup(ctx, alarm.ID, "group-1") {
		t.Fatal("expected first assignment to succeed")
	}
	if !store.AssignGroup(ctx, alarm.ID, "group-1") {
		t.Fatal("expected idempotent reassignment to succeed")
	}
	if store.AssignGroup(ctx, alarm.ID, "group-2") {
		t.Fatal("expected assignment to a second group to fail")
	}
}

func TestGetAllCreationOrder(t *testing.T) {
	store := NewAlarmStore()
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		if _, err := store.CreateAlarm(ctx, testInput(title)); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 alarms, got %d", len(all))
	}
	for i, title := range []string{"a", "b", "c"} {
		if all[i].Title != title {
			t.Fatalf("position %d: expected %s, got %s", i, title, all[i].Title)
		}
	}
}
