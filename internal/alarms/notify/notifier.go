package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	alarmapp "vesselwatch/internal/alarms/application"
	alarms "vesselwatch/internal/alarms/domain"
	"vesselwatch/internal/observability/metrics"
)

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders and delivers alarm notifications. Lifecycle events
// are broadcast to the default channels; escalations are routed to the
// channels named in the rule's escalation config via the registry.
type Notifier struct {
	registry        *Registry
	defaultChannels []string
	template        *Template
	clock           Clock
	logger          *log.Logger
	dispatchBudget  time.Duration
	mu              sync.Mutex
	sent            map[string]sendRecord
	cooldown        time.Duration
	dedupeWindow    time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the
// same alarm and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDispatchBudget caps how long a single lifecycle delivery may
// take once it has been handed off for sending.
func WithDispatchBudget(budget time.Duration) Option {
	return func(n *Notifier) {
		if budget > 0 {
			n.dispatchBudget = budget
		}
	}
}

// WithDefaultChannels sets the channels used for lifecycle broadcasts.
func WithDefaultChannels(names ...string) Option {
	return func(n *Notifier) {
		if len(names) > 0 {
			n.defaultChannels = names
		}
	}
}

// NewNotifier constructs a notifier over a channel registry.
func NewNotifier(registry *Registry, template *Template, opts ...Option) (*Notifier, error) {
	if registry == nil {
		return nil, errors.New("notifier: nil registry")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		registry:       registry,
		template:       template,
		clock:          systemClock{},
		logger:         log.Default(),
		dispatchBudget: 10 * time.Second,
		sent:           make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements the alarm event subscriber contract. Rendering and
// suppression run inline; delivery is handed off to a goroutine with a
// bounded budget so a slow channel cannot stall the publisher. Delivery
// failures are logged.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if n == nil || len(n.defaultChannels) == 0 {
		return
	}
	data := buildTemplateData(event.Type, event.Alarm, "", 0)
	content, err := n.template.Render(data)
	if err != nil {
		n.logger.Printf("notify: render failed for alarm %s: %v", event.Alarm.ID, err)
		return
	}
	if !n.shouldSend(event.Alarm.ID, event.Type, content) {
		return
	}
	n.markSent(event.Alarm.ID, event.Type, content)

	channels := append([]string(nil), n.defaultChannels...)
	budget := n.dispatchBudget
	alarmID := event.Alarm.ID
	go func() {
		for _, name := range channels {
			sendCtx, cancel := context.WithTimeout(context.Background(), budget)
			if err := n.sendTo(sendCtx, name, content); err != nil {
				n.logger.Printf("notify: channel %s failed for alarm %s: %v", name, alarmID, err)
			}
			cancel()
		}
	}()
}

// NotifyEscalated delivers an escalation notification to a named
// channel. Unknown channels and delivery failures are returned as
// errors so the caller can log them.
func (n *Notifier) NotifyEscalated(ctx context.Context, channel string, alarm alarms.Alarm, previous alarms.Severity, level int) error {
	if n == nil {
		return errors.New("notifier: nil")
	}
	data := buildTemplateData("escalated", alarm, string(previous), level)
	content, err := n.template.Render(data)
	if err != nil {
		return err
	}
	if !n.shouldSend(alarm.ID, "escalated:"+channel, content) {
		return nil
	}
	if err := n.sendTo(ctx, channel, content); err != nil {
		return err
	}
	n.markSent(alarm.ID, "escalated:"+channel, content)
	return nil
}

func (n *Notifier) sendTo(ctx context.Context, name, content string) error {
	channel, ok := n.registry.Get(name)
	if !ok {
		metrics.IncNotification(name, "unknown_channel")
		return fmt.Errorf("notifier: unknown channel %q", name)
	}
	if err := channel.Send(ctx, content); err != nil {
		metrics.IncNotification(name, "error")
		return err
	}
	metrics.IncNotification(name, "ok")
	return nil
}

func buildTemplateData(eventType string, alarm alarms.Alarm, previousSeverity string, level int) TemplateData {
	triggerValue := ""
	if alarm.SourceValue != 0 {
		triggerValue = formatFloat(alarm.SourceValue)
	}
	threshold := ""
	if alarm.ThresholdValue != 0 {
		threshold = formatFloat(alarm.ThresholdValue)
	}
	return TemplateData{
		Title:            alarm.Title,
		Description:      alarm.Description,
		Severity:         string(alarm.Severity),
		PreviousSeverity: previousSeverity,
		Vessel:           alarm.VesselID,
		Engine:           alarm.EngineID,
		Sensor:           alarm.SensorID,
		TriggerValue:     triggerValue,
		Threshold:        threshold,
		Level:            level,
		TriggeredAt:      alarm.TriggeredAt.UTC().Format(time.RFC3339),
		Status:           string(alarm.Status),
		Event:            eventType,
		EventLabel:       eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case "created":
		return "Triggered"
	case "acknowledged":
		return "Acknowledged"
	case "cleared":
		return "Cleared"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func (n *Notifier) shouldSend(alarmID, eventType, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alarmID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alarmID, eventType, content string) {
	if n == nil {
		return
	}
	key := notificationKey(alarmID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alarmID, eventType string) string {
	return alarmID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
