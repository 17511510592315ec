package application

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
	"vesselwatch/internal/observability/metrics"
)

// Engine status codes used when evaluating status reports numerically.
const (
	engineStatusRunning     = 0
	engineStatusDegraded    = 1
	engineStatusOverheating = 2
	engineStatusFailure     = 3
	engineStatusOffline     = 4
	engineStatusUnknown     = -1
)

type rateSample struct {
	at    time.Time
	value float64
}

// RuleEngine evaluates incoming telemetry against registered rules and
// creates alarms through the store. All dynamic evaluation state
// (cooldowns, condition-start times, rate buffers) is owned here, keyed
// by rule and source.
type RuleEngine struct {
	store  *AlarmStore
	clock  Clock
	logger *log.Logger

	mu             sync.Mutex
	rules          map[string]alarms.AlarmRule
	order          []string
	lastTriggered  map[string]time.Time
	conditionStart map[string]time.Time
	rateBuffers    map[string][]rateSample
}

// RuleEngineOption customizes the rule engine.
type RuleEngineOption func(*RuleEngine)

// WithRuleEngineClock overrides the default clock.
func WithRuleEngineClock(clock Clock) RuleEngineOption {
	return func(e *RuleEngine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithRuleEngineLogger overrides the default logger.
func WithRuleEngineLogger(logger *log.Logger) RuleEngineOption {
	return func(e *RuleEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewRuleEngine constructs a rule engine bound to an alarm store.
func NewRuleEngine(store *AlarmStore, opts ...RuleEngineOption) (*RuleEngine, error) {
	if store == nil {
		return nil, errors.New("rule engine: nil store")
	}
	e := &RuleEngine{
		store:          store,
		clock:          systemClock{},
		logger:         log.Default(),
		rules:          make(map[string]alarms.AlarmRule),
		lastTriggered:  make(map[string]time.Time),
		conditionStart: make(map[string]time.Time),
		rateBuffers:    make(map[string][]rateSample),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RegisterRule adds or replaces a rule.
func (e *RuleEngine) RegisterRule(rule alarms.AlarmRule) error {
	if e == nil {
		return errors.New("rule engine: nil engine")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.ID]; !exists {
		e.order = append(e.order, rule.ID)
	}
	e.rules[rule.ID] = rule
	return nil
}

// UnregisterRule removes a rule and its dynamic state. It returns false
// when the rule is unknown.
func (e *RuleEngine) UnregisterRule(ruleID string) bool {
	if e == nil || ruleID == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[ruleID]; !ok {
		return false
	}
	delete(e.rules, ruleID)
	delete(e.lastTriggered, ruleID)
	for i, id := range e.order {
		if id == ruleID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	prefix := ruleID + "|"
	for key := range e.conditionStart {
		if strings.HasPrefix(key, prefix) {
			delete(e.conditionStart, key)
		}
	}
	for key := range e.rateBuffers {
		if strings.HasPrefix(key, prefix) {
			delete(e.rateBuffers, key)
		}
	}
	return true
}

// GetRule fetches a rule by id.
func (e *RuleEngine) GetRule(ruleID string) (alarms.AlarmRule, bool) {
	if e == nil {
		return alarms.AlarmRule{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[ruleID]
	return rule, ok
}

// GetRules returns registered rules in registration order.
func (e *RuleEngine) GetRules() []alarms.AlarmRule {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]alarms.AlarmRule, 0, len(e.order))
	for _, id := range e.order {
		if rule, ok := e.rules[id]; ok {
			result = append(result, rule)
		}
	}
	return result
}

type sourceSample struct {
	kind     string
	sourceID string
	value    float64
	metrics  map[string]float64
	vesselID string
	engineID string
	sensorID string
}

// EvaluateSensorValue evaluates one sensor sample against all matching
// rules.
func (e *RuleEngine) EvaluateSensorValue(ctx context.Context, sensorID string, value float64, vesselID, engineID string) {
	if e == nil || sensorID == "" {
		return
	}
	e.evaluate(ctx, sourceSample{
		kind:     alarms.SourceSensor,
		sourceID: sensorID,
		value:    value,
		vesselID: vesselID,
		engineID: engineID,
		sensorID: sensorID,
	})
}

// EvaluateEngineStatus evaluates an engine status report. The status
// string is mapped to a numeric code for threshold comparison; metric
// values are available to condition rules by name.
func (e *RuleEngine) EvaluateEngineStatus(ctx context.Context, engineID, status string, engineMetrics map[string]float64, vesselID string) {
	if e == nil || engineID == "" {
		return
	}
	e.evaluate(ctx, sourceSample{
		kind:     alarms.SourceEngine,
		sourceID: engineID,
		value:    float64(engineStatusCode(status)),
		metrics:  engineMetrics,
		vesselID: vesselID,
		engineID: engineID,
	})
}

func (e *RuleEngine) evaluate(ctx context.Context, sample sourceSample) {
	e.mu.Lock()
	candidates := make([]alarms.AlarmRule, 0, len(e.order))
	for _, id := range e.order {
		rule, ok := e.rules[id]
		if !ok || !rule.Enabled || rule.SourceType != sample.kind {
			continue
		}
		if !rule.MatchesSource(sample.sourceID) {
			continue
		}
		candidates = append(candidates, rule)
	}
	e.mu.Unlock()

	for _, rule := range candidates {
		e.evaluateRule(ctx, rule, sample)
	}
}

func (e *RuleEngine) evaluateRule(ctx context.Context, rule alarms.AlarmRule, sample sourceSample) {
	now := e.clock.Now().UTC()
	metrics.ObserveRuleEvaluation(string(rule.RuleType))

	if e.inCooldown(rule, now) {
		return
	}

	satisfied := e.conditionMet(rule, sample, now)

	stateKey := rule.ID + "|" + sample.sourceID
	if rule.DurationSeconds > 0 {
		e.mu.Lock()
		if !satisfied {
			// Any gap resets the timer; no partial credit.
			delete(e.conditionStart, stateKey)
			e.mu.Unlock()
			return
		}
		start, pending := e.conditionStart[stateKey]
		if !pending {
			e.conditionStart[stateKey] = now
			e.mu.Unlock()
			return
		}
		if now.Sub(start) < rule.Duration() {
			e.mu.Unlock()
			return
		}
		delete(e.conditionStart, stateKey)
		e.mu.Unlock()
	} else if !satisfied {
		return
	}

	e.fire(ctx, rule, sample, now)
}

func (e *RuleEngine) conditionMet(rule alarms.AlarmRule, sample sourceSample, now time.Time) bool {
	switch rule.RuleType {
	case alarms.RuleTypeThreshold:
		return rule.Operator.Compare(sample.value, rule.Threshold)
	case alarms.RuleTypeCondition:
		comparison, err := ParseCondition(rule.Condition)
		if err != nil {
			// A malformed rule must never block evaluation of others.
			e.logger.Printf("rule engine: rule %s condition rejected: %v", rule.ID, err)
			metrics.IncRuleError(rule.ID)
			return false
		}
		return comparison.Evaluate(sample.value, sample.metrics)
	case alarms.RuleTypeRateOfChange:
		return e.rateOfChangeMet(rule, sample, now)
	default:
		// Pattern and correlation rules are declared but not evaluated.
		return false
	}
}

// rateOfChangeMet keeps a bounded sample buffer per rule and source and
// compares the per-second rate across the retained window.
func (e *RuleEngine) rateOfChangeMet(rule alarms.AlarmRule, sample sourceSample, now time.Time) bool {
	window := time.Duration(rule.RateWindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	key := rule.ID + "|" + sample.sourceID

	e.mu.Lock()
	buffer := append(e.rateBuffers[key], rateSample{at: now, value: sample.value})
	cutoff := now.Add(-window)
	trimmed := buffer[:0]
	for _, s := range buffer {
		if !s.at.Before(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	buffer = append([]rateSample(nil), trimmed...)
	e.rateBuffers[key] = buffer
	e.mu.Unlock()

	if len(buffer) < 2 {
		return false
	}
	oldest := buffer[0]
	elapsed := now.Sub(oldest.at).Seconds()
	if elapsed <= 0 {
		return false
	}
	rate := (sample.value - oldest.value) / elapsed
	return rule.Operator.Compare(rate, rule.Threshold)
}

func (e *RuleEngine) inCooldown(rule alarms.AlarmRule, now time.Time) bool {
	if rule.CooldownSeconds <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, triggered := e.lastTriggered[rule.ID]
	return triggered && now.Sub(last) < rule.Cooldown()
}

// reserveTrigger re-checks the cooldown and records the trigger time in
// one critical section, so concurrent evaluations of the same rule
// cannot both fire within a cooldown window.
func (e *RuleEngine) reserveTrigger(rule alarms.AlarmRule, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, triggered := e.lastTriggered[rule.ID]; triggered &&
		rule.CooldownSeconds > 0 && now.Sub(last) < rule.Cooldown() {
		return false
	}
	e.lastTriggered[rule.ID] = now
	return true
}

func (e *RuleEngine) releaseTrigger(rule alarms.AlarmRule, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastTriggered[rule.ID].Equal(now) {
		delete(e.lastTriggered, rule.ID)
	}
}

func (e *RuleEngine) fire(ctx context.Context, rule alarms.AlarmRule, sample sourceSample, now time.Time) {
	if !e.reserveTrigger(rule, now) {
		return
	}

	title := renderRuleTemplate(rule.TitleTemplate, rule.Name, sample)
	description := renderRuleTemplate(rule.DescriptionTemplate, "", sample)

	_, err := e.store.CreateAlarm(ctx, CreateAlarmInput{
		Title:          title,
		Description:    description,
		Severity:       rule.Severity,
		VesselID:       sample.vesselID,
		EngineID:       sample.engineID,
		SensorID:       sample.sensorID,
		RuleID:         rule.ID,
		SourceValue:    sample.value,
		ThresholdValue: rule.Threshold,
	})
	if err != nil {
		e.logger.Printf("rule engine: rule %s create alarm failed: %v", rule.ID, err)
		e.releaseTrigger(rule, now)
		return
	}
	metrics.IncRuleFired(rule.ID)
}

func renderRuleTemplate(template, fallback string, sample sourceSample) string {
	if template == "" {
		template = fallback
	}
	if template == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"{Value}", strconv.FormatFloat(sample.value, 'f', -1, 64),
		"{SourceId}", sample.sourceID,
		"{VesselId}", sample.vesselID,
		"{EngineId}", sample.engineID,
	)
	return replacer.Replace(template)
}

func engineStatusCode(status string) int {
	switch strings.TrimSpace(strings.ToLower(status)) {
	case "running", "ok", "normal":
		return engineStatusRunning
	case "degraded", "warning":
		return engineStatusDegraded
	case "overheating":
		return engineStatusOverheating
	case "failure", "fault":
		return engineStatusFailure
	case "offline", "stopped":
		return engineStatusOffline
	default:
		return engineStatusUnknown
	}
}
