package application

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
	"vesselwatch/internal/observability/metrics"
)

// DefaultEscalationTick is the cadence of the escalation scan.
const DefaultEscalationTick = 30 * time.Second

// EscalationNotifier delivers an escalation notification on one named
// channel. Delivery failures are the notifier's problem; the engine
// never blocks its bookkeeping on them.
type EscalationNotifier interface {
	NotifyEscalated(ctx context.Context, channel string, alarm alarms.Alarm, previous alarms.Severity, level int) error
}

// EscalationRecorder appends escalation records to the alarm history.
type EscalationRecorder interface {
	RecordEvent(ctx context.Context, input RecordEventInput) (alarms.AlarmHistory, error)
}

// escalationState tracks one registered alarm through the escalation
// state machine. It is created on alarm creation and destroyed on
// acknowledge or clear; an acknowledged alarm never escalates again.
type escalationState struct {
	alarmID        string
	config         alarms.EscalationConfig
	startTime      time.Time
	currentLevel   int
	lastEscalation time.Time
}

// EscalationEngine raises severity of unacknowledged alarms whose dwell
// time exceeds the configured threshold, on a periodic cadence.
type EscalationEngine struct {
	store    *AlarmStore
	notifier EscalationNotifier
	recorder EscalationRecorder
	clock    Clock
	logger   *log.Logger

	tick           time.Duration
	dispatchBudget time.Duration

	mu     sync.Mutex
	states map[string]*escalationState
}

// EscalationOption customizes the escalation engine.
type EscalationOption func(*EscalationEngine)

// WithEscalationTick overrides the scan interval.
func WithEscalationTick(interval time.Duration) EscalationOption {
	return func(e *EscalationEngine) {
		if interval > 0 {
			e.tick = interval
		}
	}
}

// WithEscalationNotifier assigns the notification dispatcher.
func WithEscalationNotifier(notifier EscalationNotifier) EscalationOption {
	return func(e *EscalationEngine) {
		e.notifier = notifier
	}
}

// WithEscalationRecorder assigns the history recorder.
func WithEscalationRecorder(recorder EscalationRecorder) EscalationOption {
	return func(e *EscalationEngine) {
		e.recorder = recorder
	}
}

// WithEscalationClock overrides the default clock.
func WithEscalationClock(clock Clock) EscalationOption {
	return func(e *EscalationEngine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithEscalationLogger overrides the default logger.
func WithEscalationLogger(logger *log.Logger) EscalationOption {
	return func(e *EscalationEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDispatchBudget bounds notification delivery per channel so one
// slow channel cannot delay the next tick.
func WithDispatchBudget(budget time.Duration) EscalationOption {
	return func(e *EscalationEngine) {
		if budget > 0 {
			e.dispatchBudget = budget
		}
	}
}

// NewEscalationEngine constructs an escalation engine.
func NewEscalationEngine(store *AlarmStore, opts ...EscalationOption) (*EscalationEngine, error) {
	if store == nil {
		return nil, errors.New("escalation engine: nil store")
	}
	e := &EscalationEngine{
		store:          store,
		clock:          systemClock{},
		logger:         log.Default(),
		tick:           DefaultEscalationTick,
		dispatchBudget: 5 * time.Second,
		states:         make(map[string]*escalationState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Register creates escalation state for a newly created alarm when its
// rule carries an enabled escalation config.
func (e *EscalationEngine) Register(alarm alarms.Alarm, config *alarms.EscalationConfig) {
	if e == nil || alarm.ID == "" || config == nil || !config.Enabled {
		return
	}
	now := e.clock.Now().UTC()
	e.mu.Lock()
	e.states[alarm.ID] = &escalationState{
		alarmID:   alarm.ID,
		config:    *config,
		startTime: now,
	}
	e.mu.Unlock()
}

// Remove drops escalation state, making the alarm unreachable by
// subsequent ticks.
func (e *EscalationEngine) Remove(alarmID string) {
	if e == nil || alarmID == "" {
		return
	}
	e.mu.Lock()
	delete(e.states, alarmID)
	e.mu.Unlock()
}

// Registered reports whether an alarm currently has escalation state.
func (e *EscalationEngine) Registered(alarmID string) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.states[alarmID]
	return ok
}

// Run drives Tick on the configured cadence until the context is
// cancelled.
func (e *EscalationEngine) Run(ctx context.Context) {
	if e == nil {
		return
	}
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick scans all registered states and escalates those due.
func (e *EscalationEngine) Tick(ctx context.Context) {
	if e == nil {
		return
	}
	now := e.clock.Now().UTC()

	e.mu.Lock()
	due := make([]*escalationState, 0, len(e.states))
	for _, state := range e.states {
		due = append(due, state)
	}
	e.mu.Unlock()

	for _, state := range due {
		e.maybeEscalate(ctx, state, now)
	}
}

func (e *EscalationEngine) maybeEscalate(ctx context.Context, state *escalationState, now time.Time) {
	alarm, ok := e.store.GetByID(state.alarmID)
	if !ok || alarm.Status != alarms.StatusActive {
		// Terminal alarms should already be deregistered; drop the
		// state if an event was missed.
		e.Remove(state.alarmID)
		return
	}

	e.mu.Lock()
	if state.currentLevel >= state.config.MaxEscalationLevel {
		e.mu.Unlock()
		return
	}
	since := state.startTime
	if !state.lastEscalation.IsZero() {
		since = state.lastEscalation
	}
	dwell := now.Sub(since)
	required := time.Duration(state.config.EscalationTimeSeconds) * time.Second
	if dwell < required {
		e.mu.Unlock()
		return
	}
	state.currentLevel++
	state.lastEscalation = now
	level := state.currentLevel
	config := state.config
	e.mu.Unlock()

	previous := alarm.Severity
	escalated, ok := e.store.Escalate(ctx, state.alarmID, config.EscalateToSeverity, level)
	if !ok {
		return
	}
	metrics.IncEscalation(string(escalated.Severity))
	e.logger.Printf("escalation: alarm %s level %d severity %s", escalated.ID, level, escalated.Severity)

	if e.recorder != nil {
		if _, err := e.recorder.RecordEvent(ctx, RecordEventInput{
			AlarmID:          escalated.ID,
			EventType:        alarms.HistoryEscalated,
			Details:          "escalated to level " + strconv.Itoa(level),
			PreviousSeverity: previous,
			NewSeverity:      escalated.Severity,
		}); err != nil {
			e.logger.Printf("escalation: history record failed: %v", err)
		}
	}

	if e.notifier != nil && len(config.Channels) > 0 {
		channels := append([]string(nil), config.Channels...)
		budget := e.dispatchBudget
		go func() {
			for _, channel := range channels {
				sendCtx, cancel := context.WithTimeout(context.Background(), budget)
				if err := e.notifier.NotifyEscalated(sendCtx, channel, escalated, previous, level); err != nil {
					e.logger.Printf("escalation: notify %s failed: %v", channel, err)
				}
				cancel()
			}
		}()
	}
}
