package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "vesselwatch_"

var (
	registerOnce sync.Once

	ruleEvaluations *prometheus.CounterVec
	ruleErrors      *prometheus.CounterVec
	rulesFired      *prometheus.CounterVec

	alarmEventsTotal *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	groupsTotal      *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
)

// Init registers observability metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ruleEvaluations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_evaluations_total",
				Help: "Total rule evaluations by rule type",
			},
			[]string{"rule_type"},
		)
		ruleErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_errors_total",
				Help: "Total rule configuration errors by rule",
			},
			[]string{"rule"},
		)
		rulesFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rules_fired_total",
				Help: "Total alarms created per rule",
			},
			[]string{"rule"},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)
		escalationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "escalations_total",
				Help: "Total severity escalations by resulting severity",
			},
			[]string{"severity"},
		)
		groupsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "groups_created_total",
				Help: "Total correlation groups created by strategy",
			},
			[]string{"strategy"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)

		prometheus.MustRegister(
			ruleEvaluations,
			ruleErrors,
			rulesFired,
			alarmEventsTotal,
			escalationsTotal,
			groupsTotal,
			notificationsTotal,
		)
	})
}

// ObserveRuleEvaluation counts one rule evaluation.
func ObserveRuleEvaluation(ruleType string) {
	if ruleType == "" {
		ruleType = "unknown"
	}
	if ruleEvaluations != nil {
		ruleEvaluations.WithLabelValues(ruleType).Inc()
	}
}

// IncRuleError counts a configuration error for a rule.
func IncRuleError(rule string) {
	if rule == "" {
		rule = "unknown"
	}
	if ruleErrors != nil {
		ruleErrors.WithLabelValues(rule).Inc()
	}
}

// IncRuleFired counts an alarm created by a rule.
func IncRuleFired(rule string) {
	if rule == "" {
		rule = "unknown"
	}
	if rulesFired != nil {
		rulesFired.WithLabelValues(rule).Inc()
	}
}

// IncAlarmEvent increments alarm lifecycle counters.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncEscalation counts a severity escalation.
func IncEscalation(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if escalationsTotal != nil {
		escalationsTotal.WithLabelValues(severity).Inc()
	}
}

// IncGroupCreated counts a new correlation group.
func IncGroupCreated(strategy string) {
	if strategy == "" {
		strategy = "unknown"
	}
	if groupsTotal != nil {
		groupsTotal.WithLabelValues(strategy).Inc()
	}
}

// IncNotification counts one notification delivery attempt.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
}
