package integration_test

import (
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"testing"

	alarmapp "vesselwatch/internal/alarms/application"
	alarms "vesselwatch/internal/alarms/domain"
	alarmrepo "vesselwatch/internal/alarms/infrastructure/postgres"
	alarminterfaces "vesselwatch/internal/alarms/interfaces"
	"vesselwatch/internal/telemetry/events"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestAlarmClosedLoop_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "alarms") || !tableExists(db, "alarm_history") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_history")
	_, _ = db.ExecContext(ctx, "DELETE FROM alarms")

	logger := log.New(io.Discard, "", 0)
	store := alarmapp.NewAlarmStore(
		alarmapp.WithStoreLogger(logger),
		alarmapp.WithRepository(alarmrepo.NewAlarmRepository(db)),
	)
	ruleEngine, err := alarmapp.NewRuleEngine(store, alarmapp.WithRuleEngineLogger(logger))
	if err != nil {
		t.Fatalf("rule engine: %v", err)
	}
	history, err := alarmapp.NewHistoryService(store,
		alarmapp.WithHistoryLogger(logger),
		alarmapp.WithHistoryRepository(alarmrepo.NewHistoryRepository(db)),
	)
	if err != nil {
		t.Fatalf("history service: %v", err)
	}
	escalation, err := alarmapp.NewEscalationEngine(store,
		alarmapp.WithEscalationRecorder(history),
		alarmapp.WithEscalationLogger(logger),
	)
	if err != nil {
		t.Fatalf("escalation engine: %v", err)
	}
	grouping, err := alarmapp.NewGroupingEngine(store,
		alarmapp.WithGroupingRecorder(history),
		alarmapp.WithGroupingLogger(logger),
	)
	if err != nil {
		t.Fatalf("grouping engine: %v", err)
	}
	service, err := alarmapp.NewService(store, ruleEngine, escalation, grouping, history,
		alarmapp.WithServiceLogger(logger))
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	if err := service.RegisterRule(alarms.AlarmRule{
		ID:            "rule-it-1",
		Name:          "Coolant High",
		RuleType:      alarms.RuleTypeThreshold,
		SourceType:    alarms.SourceSensor,
		Operator:      alarms.OperatorGreater,
		Threshold:     95,
		Severity:      alarms.SeverityWarning,
		TitleTemplate: "Coolant {Value} on {SourceId}",
		Enabled:       true,
	}); err != nil {
		t.Fatalf("register rule: %v", err)
	}

	consumer, err := alarminterfaces.NewTelemetryConsumer(service)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.ConsumeSensorSample(ctx, events.SensorSampleReceived{
		SensorID: "sensor-it-1",
		VesselID: "vessel-it-1",
		EngineID: "engine-it-1",
		Value:    120,
	}); err != nil {
		t.Fatalf("consume sample: %v", err)
	}

	active := service.GetActiveAlarms()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alarm, got %d", len(active))
	}
	alarmID := active[0].ID

	repo := alarmrepo.NewAlarmRepository(db)
	persisted, err := repo.GetByID(ctx, alarmID)
	if err != nil {
		t.Fatalf("get persisted alarm: %v", err)
	}
	if persisted == nil {
		t.Fatal("expected alarm persisted")
	}
	if persisted.Status != alarms.StatusActive {
		t.Fatalf("expected active status, got %s", persisted.Status)
	}

	if !service.AcknowledgeAlarm(ctx, alarmID, "chief") {
		t.Fatal("acknowledge failed")
	}
	persisted, err = repo.GetByID(ctx, alarmID)
	if err != nil {
		t.Fatalf("get persisted alarm: %v", err)
	}
	if persisted == nil || persisted.Status != alarms.StatusAcknowledged {
		t.Fatalf("expected acknowledged persisted, got %+v", persisted)
	}
	if persisted.AcknowledgedBy != "chief" {
		t.Fatalf("expected acknowledged_by chief, got %q", persisted.AcknowledgedBy)
	}

	if !service.ClearAlarm(ctx, alarmID, "chief") {
		t.Fatal("clear failed")
	}
	persisted, err = repo.GetByID(ctx, alarmID)
	if err != nil {
		t.Fatalf("get persisted alarm: %v", err)
	}
	if persisted == nil || persisted.Status != alarms.StatusCleared {
		t.Fatalf("expected cleared persisted, got %+v", persisted)
	}

	records, err := alarmrepo.NewHistoryRepository(db).ListByAlarm(ctx, alarmID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(records))
	}
	if records[0].EventType != alarms.HistoryCreated ||
		records[1].EventType != alarms.HistoryAcknowledged ||
		records[2].EventType != alarms.HistoryCleared {
		t.Fatalf("unexpected history order %+v", records)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
