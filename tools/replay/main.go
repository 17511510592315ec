package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	alarmapp "vesselwatch/internal/alarms/application"
	alarminterfaces "vesselwatch/internal/alarms/interfaces"
	"vesselwatch/internal/telemetry/events"
)

// replaySample is one line of a JSONL capture. Sensor samples carry a
// value; engine reports carry a status and optional metrics.
type replaySample struct {
	Kind     string             `json:"kind"`
	SensorID string             `json:"sensor_id,omitempty"`
	EngineID string             `json:"engine_id,omitempty"`
	VesselID string             `json:"vessel_id,omitempty"`
	Value    float64            `json:"value,omitempty"`
	Status   string             `json:"status,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	At       time.Time          `json:"at,omitempty"`
}

func main() {
	rulesPath := flag.String("rules", "rules.yaml", "path to rules yaml")
	samplesPath := flag.String("samples", "", "path to JSONL samples (default stdin)")
	delay := flag.Duration("delay", 0, "delay between samples")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	rules, err := alarmapp.LoadRules(*rulesPath)
	if err != nil {
		logger.Fatalf("rules load error: %v", err)
	}

	store := alarmapp.NewAlarmStore(alarmapp.WithStoreLogger(logger))
	ruleEngine, err := alarmapp.NewRuleEngine(store, alarmapp.WithRuleEngineLogger(logger))
	if err != nil {
		logger.Fatalf("rule engine error: %v", err)
	}
	history, err := alarmapp.NewHistoryService(store, alarmapp.WithHistoryLogger(logger))
	if err != nil {
		logger.Fatalf("history service error: %v", err)
	}
	escalation, err := alarmapp.NewEscalationEngine(store,
		alarmapp.WithEscalationRecorder(history),
		alarmapp.WithEscalationLogger(logger),
	)
	if err != nil {
		logger.Fatalf("escalation engine error: %v", err)
	}
	grouping, err := alarmapp.NewGroupingEngine(store,
		alarmapp.WithGroupingRecorder(history),
		alarmapp.WithGroupingLogger(logger),
	)
	if err != nil {
		logger.Fatalf("grouping engine error: %v", err)
	}
	service, err := alarmapp.NewService(store, ruleEngine, escalation, grouping, history,
		alarmapp.WithServiceLogger(logger))
	if err != nil {
		logger.Fatalf("service error: %v", err)
	}
	for _, rule := range rules {
		if err := service.RegisterRule(rule); err != nil {
			logger.Fatalf("rule %s rejected: %v", rule.ID, err)
		}
	}

	consumer, err := alarminterfaces.NewTelemetryConsumer(service)
	if err != nil {
		logger.Fatalf("consumer error: %v", err)
	}

	input := os.Stdin
	if *samplesPath != "" {
		file, err := os.Open(*samplesPath)
		if err != nil {
			logger.Fatalf("samples open error: %v", err)
		}
		defer file.Close()
		input = file
	}

	ctx := context.Background()
	scanner := bufio.NewScanner(input)
	line := 0
	fed := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var sample replaySample
		if err := json.Unmarshal(raw, &sample); err != nil {
			logger.Printf("line %d: decode error: %v", line, err)
			continue
		}
		switch sample.Kind {
		case "engine":
			err = consumer.ConsumeEngineStatus(ctx, events.EngineStatusReceived{
				EngineID:   sample.EngineID,
				VesselID:   sample.VesselID,
				Status:     sample.Status,
				Metrics:    sample.Metrics,
				OccurredAt: sample.At,
			})
		default:
			err = consumer.ConsumeSensorSample(ctx, events.SensorSampleReceived{
				SensorID:   sample.SensorID,
				VesselID:   sample.VesselID,
				EngineID:   sample.EngineID,
				Value:      sample.Value,
				OccurredAt: sample.At,
			})
		}
		if err != nil {
			logger.Printf("line %d: %v", line, err)
			continue
		}
		fed++
		if *delay > 0 {
			time.Sleep(*delay)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("read error: %v", err)
	}

	active := service.GetActiveAlarms()
	logger.Printf("replayed %d samples, %d active alarms, %d groups", fed, len(active), len(service.GetGroups()))
	for _, alarm := range active {
		logger.Printf("alarm %s [%s] %s value=%.2f", alarm.ID, alarm.Severity, alarm.Title, alarm.SourceValue)
	}
}
