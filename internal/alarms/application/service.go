package application

import (
	"context"
	"errors"
	"log"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
)

// Service is the single boundary composing the alarm store, rule
// engine, escalation engine, grouping engine and history service.
//
// Subscriptions are wired in a fixed order (history, escalation,
// grouping) and delivered synchronously by the store, so by the time a
// create or evaluate call returns the alarm has been recorded,
// registered for escalation and grouped. History goes first so the
// created record precedes the grouped record.
type Service struct {
	store      *AlarmStore
	rules      *RuleEngine
	escalation *EscalationEngine
	grouping   *GroupingEngine
	history    *HistoryService
	logger     *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithServiceLogger overrides the default logger.
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService composes the engines and wires store subscriptions.
func NewService(store *AlarmStore, rules *RuleEngine, escalation *EscalationEngine, grouping *GroupingEngine, history *HistoryService, opts ...ServiceOption) (*Service, error) {
	if store == nil || rules == nil || escalation == nil || grouping == nil || history == nil {
		return nil, errors.New("alarm service: nil component")
	}
	s := &Service{
		store:      store,
		rules:      rules,
		escalation: escalation,
		grouping:   grouping,
		history:    history,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	store.Subscribe(NotifierFunc(s.handleHistory))
	store.Subscribe(NotifierFunc(s.handleEscalationWiring))
	store.Subscribe(NotifierFunc(s.handleGrouping))
	return s, nil
}

func (s *Service) handleEscalationWiring(_ context.Context, event AlarmEvent) {
	switch event.Type {
	case EventCreated:
		if rule, ok := s.rules.GetRule(event.Alarm.RuleID); ok {
			s.escalation.Register(event.Alarm, rule.Escalation)
		}
	case EventAcknowledged, EventCleared:
		s.escalation.Remove(event.Alarm.ID)
	}
}

func (s *Service) handleGrouping(ctx context.Context, event AlarmEvent) {
	if event.Type != EventCreated {
		return
	}
	if rule, ok := s.rules.GetRule(event.Alarm.RuleID); ok {
		s.grouping.GroupAlarm(ctx, event.Alarm, rule.Grouping)
	}
}

func (s *Service) handleHistory(ctx context.Context, event AlarmEvent) {
	input := RecordEventInput{AlarmID: event.Alarm.ID}
	switch event.Type {
	case EventCreated:
		input.EventType = alarms.HistoryCreated
		input.Details = event.Alarm.Title
		input.SourceValue = event.Alarm.SourceValue
		input.ThresholdValue = event.Alarm.ThresholdValue
	case EventAcknowledged:
		input.EventType = alarms.HistoryAcknowledged
		input.UserID = event.Alarm.AcknowledgedBy
	case EventCleared:
		input.EventType = alarms.HistoryCleared
		input.UserID = event.Alarm.ClearedBy
	default:
		return
	}
	if _, err := s.history.RecordEvent(ctx, input); err != nil {
		s.logger.Printf("alarm service: history record failed: %v", err)
	}
}

// CreateAlarm raises an alarm directly, outside rule evaluation.
func (s *Service) CreateAlarm(ctx context.Context, input CreateAlarmInput) (alarms.Alarm, error) {
	if s == nil {
		return alarms.Alarm{}, errors.New("alarm service: nil service")
	}
	return s.store.CreateAlarm(ctx, input)
}

// AcknowledgeAlarm acknowledges a single alarm.
func (s *Service) AcknowledgeAlarm(ctx context.Context, id, by string) bool {
	if s == nil {
		return false
	}
	return s.store.Acknowledge(ctx, id, by)
}

// ClearAlarm clears a single alarm.
func (s *Service) ClearAlarm(ctx context.Context, id, by string) bool {
	if s == nil {
		return false
	}
	return s.store.Clear(ctx, id, by)
}

// AcknowledgeGroup acknowledges every member of a group.
func (s *Service) AcknowledgeGroup(ctx context.Context, groupID, by string) bool {
	if s == nil {
		return false
	}
	return s.grouping.AcknowledgeGroup(ctx, groupID, by)
}

// RegisterRule adds or replaces a rule.
func (s *Service) RegisterRule(rule alarms.AlarmRule) error {
	if s == nil {
		return errors.New("alarm service: nil service")
	}
	return s.rules.RegisterRule(rule)
}

// UnregisterRule removes a rule.
func (s *Service) UnregisterRule(ruleID string) bool {
	if s == nil {
		return false
	}
	return s.rules.UnregisterRule(ruleID)
}

// GetRules returns registered rules.
func (s *Service) GetRules() []alarms.AlarmRule {
	if s == nil {
		return nil
	}
	return s.rules.GetRules()
}

// EvaluateSensorValue feeds one sensor sample into rule evaluation.
func (s *Service) EvaluateSensorValue(ctx context.Context, sensorID string, value float64, vesselID, engineID string) {
	if s == nil {
		return
	}
	s.rules.EvaluateSensorValue(ctx, sensorID, value, vesselID, engineID)
}

// EvaluateEngineStatus feeds one engine status report into rule
// evaluation.
func (s *Service) EvaluateEngineStatus(ctx context.Context, engineID, status string, engineMetrics map[string]float64, vesselID string) {
	if s == nil {
		return
	}
	s.rules.EvaluateEngineStatus(ctx, engineID, status, engineMetrics, vesselID)
}

// GetActiveAlarms returns all active alarms.
func (s *Service) GetActiveAlarms() []alarms.Alarm {
	if s == nil {
		return nil
	}
	return s.store.GetActive()
}

// GetAllAlarms returns all alarms, cleared included.
func (s *Service) GetAllAlarms() []alarms.Alarm {
	if s == nil {
		return nil
	}
	return s.store.GetAll()
}

// GetAlarmByID fetches one alarm.
func (s *Service) GetAlarmByID(id string) (alarms.Alarm, bool) {
	if s == nil {
		return alarms.Alarm{}, false
	}
	return s.store.GetByID(id)
}

// GetGroups returns all correlation groups.
func (s *Service) GetGroups() []alarms.AlarmGroup {
	if s == nil {
		return nil
	}
	return s.grouping.GetGroups()
}

// GetGroup fetches one group.
func (s *Service) GetGroup(id string) (alarms.AlarmGroup, bool) {
	if s == nil {
		return alarms.AlarmGroup{}, false
	}
	return s.grouping.GetGroup(id)
}

// GetGroupForAlarm returns the group an alarm belongs to.
func (s *Service) GetGroupForAlarm(alarmID string) (alarms.AlarmGroup, bool) {
	if s == nil {
		return alarms.AlarmGroup{}, false
	}
	return s.grouping.GetGroupForAlarm(alarmID)
}

// GetAlarmHistory returns an alarm's event log.
func (s *Service) GetAlarmHistory(alarmID string) []alarms.AlarmHistory {
	if s == nil {
		return nil
	}
	return s.history.GetAlarmHistory(alarmID)
}

// GetTrends computes trend aggregates over [start, end).
func (s *Service) GetTrends(start, end time.Time) alarms.AlarmTrend {
	if s == nil {
		return alarms.AlarmTrend{}
	}
	return s.history.GetTrends(start, end)
}
