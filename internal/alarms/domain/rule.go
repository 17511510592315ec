package alarms

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Operator compares a sampled value against a rule threshold.
type Operator string

const (
	OperatorGreater        Operator = ">"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLess           Operator = "<"
	OperatorLessOrEqual    Operator = "<="
	OperatorEqual          Operator = "=="
	OperatorNotEqual       Operator = "!="
)

// floatEqualityEpsilon bounds == and != comparisons on sampled floats.
const floatEqualityEpsilon = 0.001

// Valid returns true when operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OperatorGreater, OperatorGreaterOrEqual, OperatorLess, OperatorLessOrEqual, OperatorEqual, OperatorNotEqual:
		return true
	default:
		return false
	}
}

// Compare applies the operator to value and threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OperatorGreater:
		return value > threshold
	case OperatorGreaterOrEqual:
		return value >= threshold
	case OperatorLess:
		return value < threshold
	case OperatorLessOrEqual:
		return value <= threshold
	case OperatorEqual:
		return math.Abs(value-threshold) < floatEqualityEpsilon
	case OperatorNotEqual:
		return math.Abs(value-threshold) >= floatEqualityEpsilon
	default:
		return false
	}
}

// RuleType selects the evaluation algorithm for a rule.
type RuleType string

const (
	RuleTypeThreshold    RuleType = "threshold"
	RuleTypeCondition    RuleType = "condition"
	RuleTypeRateOfChange RuleType = "rate_of_change"
	RuleTypePattern      RuleType = "pattern"
	RuleTypeCorrelation  RuleType = "correlation"
)

// Source event kinds a rule can subscribe to.
const (
	SourceSensor = "sensor"
	SourceEngine = "engine"
)

// EscalationConfig controls time-based severity escalation for alarms
// created by a rule.
type EscalationConfig struct {
	Enabled               bool     `yaml:"enabled" json:"enabled"`
	EscalationTimeSeconds int      `yaml:"escalation_time_seconds" json:"escalation_time_seconds"`
	EscalateToSeverity    Severity `yaml:"escalate_to_severity" json:"escalate_to_severity"`
	MaxEscalationLevel    int      `yaml:"max_escalation_level" json:"max_escalation_level"`
	Channels              []string `yaml:"channels" json:"channels,omitempty"`
}

// GroupingStrategy selects the group-matching rule.
type GroupingStrategy string

const (
	GroupBySource     GroupingStrategy = "by_source"
	GroupBySeverity   GroupingStrategy = "by_severity"
	GroupByVessel     GroupingStrategy = "by_vessel"
	GroupByTimeWindow GroupingStrategy = "by_time_window"
	GroupByRule       GroupingStrategy = "by_rule"
)

// Valid returns true when the strategy is supported.
func (s GroupingStrategy) Valid() bool {
	switch s {
	case GroupBySource, GroupBySeverity, GroupByVessel, GroupByTimeWindow, GroupByRule:
		return true
	default:
		return false
	}
}

// GroupingConfig controls correlation of alarms created by a rule.
type GroupingConfig struct {
	Enabled           bool             `yaml:"enabled" json:"enabled"`
	Strategy          GroupingStrategy `yaml:"strategy" json:"strategy"`
	TimeWindowSeconds int              `yaml:"time_window_seconds" json:"time_window_seconds"`
	MaxAlarmsPerGroup int              `yaml:"max_alarms_per_group" json:"max_alarms_per_group"`
}

// AlarmRule defines when to raise an alarm. Rules are stateless
// configuration; all dynamic state lives in the rule engine.
type AlarmRule struct {
	ID                  string            `yaml:"id" json:"id"`
	Name                string            `yaml:"name" json:"name"`
	RuleType            RuleType          `yaml:"rule_type" json:"rule_type"`
	SourceType          string            `yaml:"source_type" json:"source_type"`
	SourceIDPattern     string            `yaml:"source_id_pattern" json:"source_id_pattern"`
	Operator            Operator          `yaml:"operator" json:"operator"`
	Threshold           float64           `yaml:"threshold" json:"threshold"`
	Condition           string            `yaml:"condition" json:"condition,omitempty"`
	Severity            Severity          `yaml:"severity" json:"severity"`
	TitleTemplate       string            `yaml:"title_template" json:"title_template"`
	DescriptionTemplate string            `yaml:"description_template" json:"description_template"`
	DurationSeconds     int               `yaml:"duration_seconds" json:"duration_seconds"`
	CooldownSeconds     int               `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	RateWindowSeconds   int               `yaml:"rate_window_seconds" json:"rate_window_seconds"`
	Escalation          *EscalationConfig `yaml:"escalation" json:"escalation,omitempty"`
	Grouping            *GroupingConfig   `yaml:"grouping" json:"grouping,omitempty"`
	Enabled             bool              `yaml:"enabled" json:"enabled"`
}

// Validate checks rule invariants.
func (r AlarmRule) Validate() error {
	if r.ID == "" {
		return errors.New("alarm rule: empty id")
	}
	if r.Name == "" {
		return errors.New("alarm rule: empty name")
	}
	switch r.RuleType {
	case RuleTypeThreshold, RuleTypeRateOfChange:
		if !r.Operator.Valid() {
			return errors.New("alarm rule: invalid operator")
		}
	case RuleTypeCondition:
		if strings.TrimSpace(r.Condition) == "" {
			return errors.New("alarm rule: empty condition")
		}
	case RuleTypePattern, RuleTypeCorrelation:
		// Declared but not evaluated yet.
	default:
		return errors.New("alarm rule: invalid rule type")
	}
	if r.SourceType != SourceSensor && r.SourceType != SourceEngine {
		return errors.New("alarm rule: invalid source type")
	}
	if !r.Severity.Valid() {
		return errors.New("alarm rule: invalid severity")
	}
	if r.DurationSeconds < 0 || r.CooldownSeconds < 0 || r.RateWindowSeconds < 0 {
		return errors.New("alarm rule: negative duration")
	}
	if r.Escalation != nil && r.Escalation.Enabled {
		if r.Escalation.EscalationTimeSeconds < 0 {
			return errors.New("alarm rule: negative escalation time")
		}
		if !r.Escalation.EscalateToSeverity.Valid() {
			return errors.New("alarm rule: invalid escalation severity")
		}
		if r.Escalation.MaxEscalationLevel <= 0 {
			return errors.New("alarm rule: escalation level must be positive")
		}
	}
	if r.Grouping != nil && r.Grouping.Enabled {
		if !r.Grouping.Strategy.Valid() {
			return errors.New("alarm rule: invalid grouping strategy")
		}
		if r.Grouping.TimeWindowSeconds <= 0 {
			return errors.New("alarm rule: grouping window must be positive")
		}
	}
	return nil
}

// Cooldown returns the cooldown as a duration.
func (r AlarmRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// Duration returns the sustained-condition requirement as a duration.
func (r AlarmRule) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// MatchesSource reports whether the rule's wildcard pattern matches the
// source id. Matching is case-insensitive; `*` matches any run of
// characters and `?` exactly one. An empty pattern matches everything.
func (r AlarmRule) MatchesSource(sourceID string) bool {
	pattern := strings.ToLower(strings.TrimSpace(r.SourceIDPattern))
	if pattern == "" || pattern == "*" {
		return true
	}
	return wildcardMatch(pattern, strings.ToLower(sourceID))
}

func wildcardMatch(pattern, s string) bool {
	// Iterative wildcard match with backtracking on the last `*`.
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
