package application

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
)

func newTestGrouping(t *testing.T, clock Clock, opts ...GroupingOption) (*GroupingEngine, *AlarmStore) {
	t.Helper()
	store := NewAlarmStore(WithStoreClock(clock))
	base := []GroupingOption{WithGroupingClock(clock)}
	engine, err := NewGroupingEngine(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new grouping engine: %v", err)
	}
	return engine, store
}

func vesselGrouping(windowSeconds int) *alarms.GroupingConfig {
	return &alarms.GroupingConfig{
		Enabled:           true,
		Strategy:          alarms.GroupByVessel,
		TimeWindowSeconds: windowSeconds,
	}
}

func createForVessel(t *testing.T, store *AlarmStore, title, vesselID string) alarms.Alarm {
	t.Helper()
	input := testInput(title)
	input.VesselID = vesselID
	alarm, err := store.CreateAlarm(context.Background(), input)
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return alarm
}

func TestGroupByVesselWithinWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := vesselGrouping(300)

	first := createForVessel(t, store, "a", "vessel-1")
	second := createForVessel(t, store, "b", "vessel-1")
	other := createForVessel(t, store, "c", "vessel-2")

	groupID, ok := engine.GroupAlarm(ctx, first, config)
	if !ok {
		t.Fatal("expected first alarm grouped")
	}
	secondGroup, ok := engine.GroupAlarm(ctx, second, config)
	if !ok || secondGroup != groupID {
		t.Fatalf("expected same-vessel alarm to join %s, got %s", groupID, secondGroup)
	}
	otherGroup, ok := engine.GroupAlarm(ctx, other, config)
	if !ok || otherGroup == groupID {
		t.Fatal("expected different vessel to open a new group")
	}

	group, ok := engine.GetGroup(groupID)
	if !ok || len(group.AlarmIDs) != 2 {
		t.Fatalf("expected 2 members, got %+v", group)
	}
	stored, _ := store.GetByID(second.ID)
	if stored.GroupID != groupID {
		t.Fatalf("expected store to record membership, got %q", stored.GroupID)
	}
}

func TestGroupWindowExpires(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := vesselGrouping(300)

	first := createForVessel(t, store, "a", "vessel-1")
	firstGroup, _ := engine.GroupAlarm(ctx, first, config)

	clock.Advance(301 * time.Second)
	late := createForVessel(t, store, "b", "vessel-1")
	lateGroup, ok := engine.GroupAlarm(ctx, late, config)
	if !ok {
		t.Fatal("expected late alarm grouped")
	}
	if lateGroup == firstGroup {
		t.Fatal("expected expired window to open a new group")
	}
}

func TestGroupingIdempotentPerAlarm(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := vesselGrouping(300)

	alarm := createForVessel(t, store, "a", "vessel-1")
	first, _ := engine.GroupAlarm(ctx, alarm, config)
	second, ok := engine.GroupAlarm(ctx, alarm, config)
	if !ok || second != first {
		t.Fatalf("expected idempotent grouping, got %s then %s", first, second)
	}
	group, _ := engine.GetGroup(first)
	if len(group.AlarmIDs) != 1 {
		t.Fatalf("expected single membership entry, got %v", group.AlarmIDs)
	}
}

func TestGroupingDisabledConfig(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	alarm := createForVessel(t, store, "a", "vessel-1")

	if _, ok := engine.GroupAlarm(context.Background(), alarm, nil); ok {
		t.Fatal("expected nil config to skip grouping")
	}
	if _, ok := engine.GroupAlarm(context.Background(), alarm, &alarms.GroupingConfig{Enabled: false}); ok {
		t.Fatal("expected disabled config to skip grouping")
	}
}

func TestGroupCapacityIsAdvisory(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	var buf bytes.Buffer
	engine, store := newTestGrouping(t, clock, WithGroupingLogger(log.New(&buf, "", 0)))
	ctx := context.Background()
	config := vesselGrouping(300)
	config.MaxAlarmsPerGroup = 2

	var groupID string
	for i := 0; i < 3; i++ {
		alarm := createForVessel(t, store, "a", "vessel-1")
		id, ok := engine.GroupAlarm(ctx, alarm, config)
		if !ok {
			t.Fatalf("alarm %d not grouped", i)
		}
		groupID = id
	}

	group, _ := engine.GetGroup(groupID)
	if len(group.AlarmIDs) != 3 {
		t.Fatalf("over-capacity member must be admitted, got %d members", len(group.AlarmIDs))
	}
	if !strings.Contains(buf.String(), "over capacity") {
		t.Fatalf("expected capacity warning in log, got %q", buf.String())
	}
}

func createForSource(t *testing.T, store *AlarmStore, title, vesselID, engineID, sensorID string) alarms.Alarm {
	t.Helper()
	input := testInput(title)
	input.VesselID = vesselID
	input.EngineID = engineID
	input.SensorID = sensorID
	alarm, err := store.CreateAlarm(context.Background(), input)
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return alarm
}

func TestGroupBySourceWithinWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := &alarms.GroupingConfig{Enabled: true, Strategy: alarms.GroupBySource, TimeWindowSeconds: 300}

	first := createForSource(t, store, "a", "vessel-1", "engine-1", "sensor-1")
	groupID, ok := engine.GroupAlarm(ctx, first, config)
	if !ok {
		t.Fatal("expected first alarm grouped")
	}

	// Shares only the vessel with the seed.
	clock.Advance(100 * time.Second)
	sharing := createForSource(t, store, "b", "vessel-1", "engine-2", "sensor-2")
	sharingGroup, ok := engine.GroupAlarm(ctx, sharing, config)
	if !ok || sharingGroup != groupID {
		t.Fatalf("expected shared-vessel alarm to join %s, got %s", groupID, sharingGroup)
	}

	// No common vessel, engine or sensor.
	unrelated := createForSource(t, store, "c", "vessel-2", "engine-3", "sensor-3")
	unrelatedGroup, ok := engine.GroupAlarm(ctx, unrelated, config)
	if !ok || unrelatedGroup == groupID {
		t.Fatal("expected unrelated sources to open a new group")
	}

	// Shared source but past the group's window.
	clock.Advance(301 * time.Second)
	late := createForSource(t, store, "d", "vessel-1", "engine-1", "sensor-1")
	lateGroup, ok := engine.GroupAlarm(ctx, late, config)
	if !ok || lateGroup == groupID {
		t.Fatal("expected expired window to open a new group")
	}
}

func TestGroupByTimeWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := &alarms.GroupingConfig{Enabled: true, Strategy: alarms.GroupByTimeWindow, TimeWindowSeconds: 300}

	// Nothing shared between the two alarms; the window alone matches.
	first := createForSource(t, store, "a", "vessel-1", "engine-1", "sensor-1")
	second := createForSource(t, store, "b", "vessel-2", "engine-2", "sensor-2")
	groupID, _ := engine.GroupAlarm(ctx, first, config)
	secondGroup, ok := engine.GroupAlarm(ctx, second, config)
	if !ok || secondGroup != groupID {
		t.Fatalf("expected window-only match to join %s, got %s", groupID, secondGroup)
	}

	clock.Advance(301 * time.Second)
	late := createForSource(t, store, "c", "vessel-3", "engine-3", "sensor-3")
	lateGroup, ok := engine.GroupAlarm(ctx, late, config)
	if !ok || lateGroup == groupID {
		t.Fatal("expected expired window to open a new group")
	}
}

func TestGroupBySeverityAndByRule(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()

	bySeverity := &alarms.GroupingConfig{Enabled: true, Strategy: alarms.GroupBySeverity, TimeWindowSeconds: 300}

	warning := testInput("warn")
	critical := testInput("crit")
	critical.Severity = alarms.SeverityCritical
	first, _ := store.CreateAlarm(ctx, warning)
	second, _ := store.CreateAlarm(ctx, critical)

	firstGroup, _ := engine.GroupAlarm(ctx, first, bySeverity)
	secondGroup, _ := engine.GroupAlarm(ctx, second, bySeverity)
	if firstGroup == secondGroup {
		t.Fatal("expected different severities in different groups")
	}

	byRule := &alarms.GroupingConfig{Enabled: true, Strategy: alarms.GroupByRule, TimeWindowSeconds: 300}
	third, _ := store.CreateAlarm(ctx, testInput("same rule"))
	fourth, _ := store.CreateAlarm(ctx, testInput("same rule again"))
	thirdGroup, _ := engine.GroupAlarm(ctx, third, byRule)
	fourthGroup, _ := engine.GroupAlarm(ctx, fourth, byRule)
	if thirdGroup != fourthGroup {
		t.Fatal("expected same-rule alarms in one group")
	}
}

func TestAcknowledgeGroup(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := vesselGrouping(300)

	first := createForVessel(t, store, "a", "vessel-1")
	second := createForVessel(t, store, "b", "vessel-1")
	groupID, _ := engine.GroupAlarm(ctx, first, config)
	engine.GroupAlarm(ctx, second, config)

	// One member acknowledged individually beforehand still counts.
	store.Acknowledge(ctx, first.ID, "chief")

	if !engine.AcknowledgeGroup(ctx, groupID, "chief") {
		t.Fatal("expected group acknowledge to succeed")
	}
	group, _ := engine.GetGroup(groupID)
	if group.Status != alarms.GroupStatusAcknowledged {
		t.Fatalf("expected acknowledged group, got %s", group.Status)
	}
	for _, id := range group.AlarmIDs {
		alarm, _ := store.GetByID(id)
		if alarm.Status != alarms.StatusAcknowledged {
			t.Fatalf("member %s not acknowledged", id)
		}
	}
}

func TestAcknowledgeGroupPartialFailure(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()
	config := vesselGrouping(300)

	first := createForVessel(t, store, "a", "vessel-1")
	second := createForVessel(t, store, "b", "vessel-1")
	groupID, _ := engine.GroupAlarm(ctx, first, config)
	engine.GroupAlarm(ctx, second, config)

	// A cleared member can no longer be acknowledged.
	store.Clear(ctx, second.ID, "auto")

	if engine.AcknowledgeGroup(ctx, groupID, "chief") {
		t.Fatal("expected partial failure to return false")
	}
	group, _ := engine.GetGroup(groupID)
	if group.Status != alarms.GroupStatusActive {
		t.Fatalf("expected group to stay active, got %s", group.Status)
	}
	// The acknowledgeable member was still acknowledged.
	alarm, _ := store.GetByID(first.ID)
	if alarm.Status != alarms.StatusAcknowledged {
		t.Fatalf("expected first member acknowledged, got %s", alarm.Status)
	}
}

func TestAcknowledgeUnknownGroup(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, _ := newTestGrouping(t, clock)
	if engine.AcknowledgeGroup(context.Background(), "missing", "chief") {
		t.Fatal("expected unknown group to fail")
	}
}

func TestGetGroupForAlarm(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine, store := newTestGrouping(t, clock)
	ctx := context.Background()

	alarm := createForVessel(t, store, "a", "vessel-1")
	groupID, _ := engine.GroupAlarm(ctx, alarm, vesselGrouping(300))

	group, ok := engine.GetGroupForAlarm(alarm.ID)
	if !ok || group.ID != groupID {
		t.Fatalf("expected group %s, got %+v", groupID, group)
	}
	if _, ok := engine.GetGroupForAlarm("missing"); ok {
		t.Fatal("expected no group for unknown alarm")
	}
}
