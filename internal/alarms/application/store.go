package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	alarms "vesselwatch/internal/alarms/domain"
	"vesselwatch/internal/observability/metrics"
)

// AlarmRepository is an optional write-through store layered beneath the
// in-memory registry. Failures are logged, never propagated: memory is
// canonical.
type AlarmRepository interface {
	Create(ctx context.Context, alarm *alarms.Alarm) error
	MarkAcknowledged(ctx context.Context, id, by string, at time.Time) error
	MarkCleared(ctx context.Context, id, by string, at time.Time) error
	UpdateSeverity(ctx context.Context, id string, severity alarms.Severity, level int, at time.Time) error
	UpdateGroup(ctx context.Context, id, groupID string, at time.Time) error
}

// CreateAlarmInput carries the fields of a new alarm.
type CreateAlarmInput struct {
	Title          string
	Description    string
	Severity       alarms.Severity
	VesselID       string
	EngineID       string
	SensorID       string
	RuleID         string
	SourceValue    float64
	ThresholdValue float64
}

// AlarmStore is the canonical in-memory registry of alarm instances.
//
// Lock discipline: opMu serializes whole mutations including event
// delivery; mu guards the maps. Subscribers run under opMu but not mu,
// so they may query the store and call AssignGroup/Escalate, which take
// mu only and publish nothing.
type AlarmStore struct {
	opMu sync.Mutex
	mu   sync.Mutex

	byID  map[string]*alarms.Alarm
	order []string

	subscribers []AlarmNotifier
	repo        AlarmRepository
	clock       Clock
	logger      *log.Logger
}

// StoreOption customizes the store.
type StoreOption func(*AlarmStore)

// WithRepository layers a write-through repository beneath the store.
func WithRepository(repo AlarmRepository) StoreOption {
	return func(s *AlarmStore) {
		s.repo = repo
	}
}

// WithStoreClock overrides the default clock.
func WithStoreClock(clock Clock) StoreOption {
	return func(s *AlarmStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStoreLogger overrides the default logger.
func WithStoreLogger(logger *log.Logger) StoreOption {
	return func(s *AlarmStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAlarmStore constructs an alarm store.
func NewAlarmStore(opts ...StoreOption) *AlarmStore {
	s := &AlarmStore{
		byID:   make(map[string]*alarms.Alarm),
		clock:  systemClock{},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a lifecycle event subscriber. Subscribers are
// notified synchronously, in registration order.
func (s *AlarmStore) Subscribe(subscriber AlarmNotifier) {
	if s == nil || subscriber == nil {
		return
	}
	s.opMu.Lock()
	s.subscribers = append(s.subscribers, subscriber)
	s.opMu.Unlock()
}

// CreateAlarm registers a new active alarm and publishes a created event
// before returning.
func (s *AlarmStore) CreateAlarm(ctx context.Context, input CreateAlarmInput) (alarms.Alarm, error) {
	if s == nil {
		return alarms.Alarm{}, errors.New("alarm store: nil store")
	}
	if input.Title == "" {
		return alarms.Alarm{}, errors.New("alarm store: empty title")
	}
	if !input.Severity.Valid() {
		return alarms.Alarm{}, errors.New("alarm store: invalid severity")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.clock.Now().UTC()
	alarm := &alarms.Alarm{
		ID:             uuid.New().String(),
		Title:          input.Title,
		Description:    input.Description,
		Severity:       input.Severity,
		Status:         alarms.StatusActive,
		VesselID:       input.VesselID,
		EngineID:       input.EngineID,
		SensorID:       input.SensorID,
		RuleID:         input.RuleID,
		TriggeredAt:    now,
		SourceValue:    input.SourceValue,
		ThresholdValue: input.ThresholdValue,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.byID[alarm.ID] = alarm
	s.order = append(s.order, alarm.ID)
	snapshot := *alarm
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Create(ctx, &snapshot); err != nil {
			s.logger.Printf("alarm store: repository create failed: %v", err)
		}
	}

	s.publish(ctx, AlarmEvent{Type: EventCreated, Alarm: snapshot})

	s.mu.Lock()
	snapshot = *s.byID[alarm.ID]
	s.mu.Unlock()
	return snapshot, nil
}

// Acknowledge marks an active alarm acknowledged. It returns false when
// the alarm does not exist or is not active.
func (s *AlarmStore) Acknowledge(ctx context.Context, id, by string) bool {
	if s == nil || id == "" {
		return false
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.clock.Now().UTC()

	s.mu.Lock()
	alarm, ok := s.byID[id]
	if !ok || alarm.Status != alarms.StatusActive {
		s.mu.Unlock()
		return false
	}
	alarm.Status = alarms.StatusAcknowledged
	alarm.AcknowledgedAt = now
	alarm.AcknowledgedBy = by
	alarm.UpdatedAt = now
	snapshot := *alarm
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.MarkAcknowledged(ctx, id, by, now); err != nil {
			s.logger.Printf("alarm store: repository ack failed: %v", err)
		}
	}

	s.publish(ctx, AlarmEvent{Type: EventAcknowledged, Alarm: snapshot})
	return true
}

// Clear marks an alarm cleared. Clearing succeeds from active or
// acknowledged; it returns false for unknown or already cleared alarms.
func (s *AlarmStore) Clear(ctx context.Context, id, by string) bool {
	if s == nil || id == "" {
		return false
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.clock.Now().UTC()

	s.mu.Lock()
	alarm, ok := s.byID[id]
	if !ok || alarm.Status == alarms.StatusCleared {
		s.mu.Unlock()
		return false
	}
	alarm.Status = alarms.StatusCleared
	alarm.ClearedAt = now
	alarm.ClearedBy = by
	alarm.UpdatedAt = now
	snapshot := *alarm
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.MarkCleared(ctx, id, by, now); err != nil {
			s.logger.Printf("alarm store: repository clear failed: %v", err)
		}
	}

	s.publish(ctx, AlarmEvent{Type: EventCleared, Alarm: snapshot})
	return true
}

// Escalate raises an alarm's severity and escalation level. Severity is
// never lowered and only active alarms escalate. No lifecycle event is
// published; escalation is recorded through the history service.
func (s *AlarmStore) Escalate(ctx context.Context, id string, severity alarms.Severity, level int) (alarms.Alarm, bool) {
	if s == nil || id == "" {
		return alarms.Alarm{}, false
	}
	now := s.clock.Now().UTC()

	s.mu.Lock()
	alarm, ok := s.byID[id]
	if !ok || alarm.Status != alarms.StatusActive {
		s.mu.Unlock()
		return alarms.Alarm{}, false
	}
	if severity.Rank() > alarm.Severity.Rank() {
		alarm.Severity = severity
	}
	if level > alarm.EscalationLevel {
		alarm.EscalationLevel = level
	}
	alarm.UpdatedAt = now
	snapshot := *alarm
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.UpdateSeverity(ctx, id, snapshot.Severity, snapshot.EscalationLevel, now); err != nil {
			s.logger.Printf("alarm store: repository escalate failed: %v", err)
		}
	}
	return snapshot, true
}

// AssignGroup records group membership for an alarm. An alarm belongs to
// at most one group; assigning over an existing membership fails.
func (s *AlarmStore) AssignGroup(ctx context.Context, id, groupID string) bool {
	if s == nil || id == "" || groupID == "" {
		return false
	}
	now := s.clock.Now().UTC()

	s.mu.Lock()
	alarm, ok := s.byID[id]
	if !ok || (alarm.GroupID != "" && alarm.GroupID != groupID) {
		s.mu.Unlock()
		return false
	}
	alarm.GroupID = groupID
	alarm.UpdatedAt = now
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.UpdateGroup(ctx, id, groupID, now); err != nil {
			s.logger.Printf("alarm store: repository group update failed: %v", err)
		}
	}
	return true
}

// GetByID fetches an alarm by id.
func (s *AlarmStore) GetByID(id string) (alarms.Alarm, bool) {
	if s == nil {
		return alarms.Alarm{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	alarm, ok := s.byID[id]
	if !ok {
		return alarms.Alarm{}, false
	}
	return *alarm, true
}

// GetActive returns non-cleared, non-acknowledged alarms in creation order.
func (s *AlarmStore) GetActive() []alarms.Alarm {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []alarms.Alarm
	for _, id := range s.order {
		if alarm := s.byID[id]; alarm != nil && alarm.Status == alarms.StatusActive {
			result = append(result, *alarm)
		}
	}
	return result
}

// GetAll returns all alarms in creation order. Cleared alarms are never
// physically deleted and remain queryable.
func (s *AlarmStore) GetAll() []alarms.Alarm {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]alarms.Alarm, 0, len(s.order))
	for _, id := range s.order {
		if alarm := s.byID[id]; alarm != nil {
			result = append(result, *alarm)
		}
	}
	return result
}

func (s *AlarmStore) publish(ctx context.Context, event AlarmEvent) {
	metrics.IncAlarmEvent(event.Type)
	for _, subscriber := range s.subscribers {
		if subscriber != nil {
			subscriber.Notify(ctx, event)
		}
	}
}
