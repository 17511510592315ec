package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	alarms "vesselwatch/internal/alarms/domain"
	"vesselwatch/internal/observability/metrics"
)

// GroupingEngine assigns newly created alarms to correlation groups
// using the rule's configured strategy.
type GroupingEngine struct {
	store    *AlarmStore
	recorder EscalationRecorder
	clock    Clock
	logger   *log.Logger

	mu           sync.Mutex
	groups       map[string]*alarms.AlarmGroup
	order        []string
	alarmToGroup map[string]string
}

// GroupingOption customizes the grouping engine.
type GroupingOption func(*GroupingEngine)

// WithGroupingClock overrides the default clock.
func WithGroupingClock(clock Clock) GroupingOption {
	return func(g *GroupingEngine) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithGroupingLogger overrides the default logger.
func WithGroupingLogger(logger *log.Logger) GroupingOption {
	return func(g *GroupingEngine) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGroupingRecorder assigns the history recorder.
func WithGroupingRecorder(recorder EscalationRecorder) GroupingOption {
	return func(g *GroupingEngine) {
		g.recorder = recorder
	}
}

// NewGroupingEngine constructs a grouping engine.
func NewGroupingEngine(store *AlarmStore, opts ...GroupingOption) (*GroupingEngine, error) {
	if store == nil {
		return nil, errors.New("grouping engine: nil store")
	}
	g := &GroupingEngine{
		store:        store,
		clock:        systemClock{},
		logger:       log.Default(),
		groups:       make(map[string]*alarms.AlarmGroup),
		alarmToGroup: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GroupAlarm finds or creates a correlation group for the alarm and
// records membership. It returns the group id.
func (g *GroupingEngine) GroupAlarm(ctx context.Context, alarm alarms.Alarm, config *alarms.GroupingConfig) (string, bool) {
	if g == nil || alarm.ID == "" || config == nil || !config.Enabled {
		return "", false
	}
	now := g.clock.Now().UTC()
	window := time.Duration(config.TimeWindowSeconds) * time.Second

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.alarmToGroup[alarm.ID]; ok {
		return existing, true
	}

	var target *alarms.AlarmGroup
	for _, id := range g.order {
		group := g.groups[id]
		if group == nil || group.Strategy != config.Strategy || group.Status != alarms.GroupStatusActive {
			continue
		}
		if !group.WithinWindow(now, window) {
			continue
		}
		if !g.matches(*group, alarm, config.Strategy) {
			continue
		}
		target = group
		break
	}

	if target == nil {
		target = &alarms.AlarmGroup{
			ID:        uuid.New().String(),
			Name:      fmt.Sprintf("%s group %s", config.Strategy, now.Format("2006-01-02T15:04:05Z")),
			Strategy:  config.Strategy,
			CreatedAt: now,
			Status:    alarms.GroupStatusActive,
		}
		g.groups[target.ID] = target
		g.order = append(g.order, target.ID)
		metrics.IncGroupCreated(string(config.Strategy))
	} else if config.MaxAlarmsPerGroup > 0 && len(target.AlarmIDs) >= config.MaxAlarmsPerGroup {
		// Capacity is advisory: log and admit.
		g.logger.Printf("grouping: group %s over capacity (%d members)", target.ID, len(target.AlarmIDs))
	}

	target.AlarmIDs = append(target.AlarmIDs, alarm.ID)
	g.alarmToGroup[alarm.ID] = target.ID

	g.store.AssignGroup(ctx, alarm.ID, target.ID)
	if g.recorder != nil {
		if _, err := g.recorder.RecordEvent(ctx, RecordEventInput{
			AlarmID:   alarm.ID,
			EventType: alarms.HistoryGrouped,
			Details:   "joined group " + target.ID,
		}); err != nil {
			g.logger.Printf("grouping: history record failed: %v", err)
		}
	}
	return target.ID, true
}

// matches applies the strategy's equality rule between the group's seed
// alarm and the candidate.
func (g *GroupingEngine) matches(group alarms.AlarmGroup, alarm alarms.Alarm, strategy alarms.GroupingStrategy) bool {
	if strategy == alarms.GroupByTimeWindow {
		// Window membership is the only criterion.
		return true
	}
	seed, ok := g.store.GetByID(group.SeedAlarmID())
	if !ok {
		return false
	}
	switch strategy {
	case alarms.GroupBySource:
		return seed.SharesSource(alarm)
	case alarms.GroupBySeverity:
		return seed.Severity == alarm.Severity
	case alarms.GroupByVessel:
		return seed.VesselID != "" && seed.VesselID == alarm.VesselID
	case alarms.GroupByRule:
		return seed.RuleID != "" && seed.RuleID == alarm.RuleID
	default:
		return false
	}
}

// GetGroups returns all groups in creation order.
func (g *GroupingEngine) GetGroups() []alarms.AlarmGroup {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make([]alarms.AlarmGroup, 0, len(g.order))
	for _, id := range g.order {
		if group := g.groups[id]; group != nil {
			result = append(result, copyGroup(*group))
		}
	}
	return result
}

// GetGroup fetches a group by id.
func (g *GroupingEngine) GetGroup(id string) (alarms.AlarmGroup, bool) {
	if g == nil {
		return alarms.AlarmGroup{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	group, ok := g.groups[id]
	if !ok {
		return alarms.AlarmGroup{}, false
	}
	return copyGroup(*group), true
}

// GetGroupForAlarm returns the group an alarm belongs to, if any.
func (g *GroupingEngine) GetGroupForAlarm(alarmID string) (alarms.AlarmGroup, bool) {
	if g == nil {
		return alarms.AlarmGroup{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	groupID, ok := g.alarmToGroup[alarmID]
	if !ok {
		return alarms.AlarmGroup{}, false
	}
	group, ok := g.groups[groupID]
	if !ok {
		return alarms.AlarmGroup{}, false
	}
	return copyGroup(*group), true
}

func copyGroup(group alarms.AlarmGroup) alarms.AlarmGroup {
	group.AlarmIDs = append([]string(nil), group.AlarmIDs...)
	return group
}

// AcknowledgeGroup acknowledges every member through the store. The
// group transitions to acknowledged only when all member calls succeed;
// a partial failure leaves the group active and returns false.
func (g *GroupingEngine) AcknowledgeGroup(ctx context.Context, groupID, by string) bool {
	if g == nil || groupID == "" {
		return false
	}
	g.mu.Lock()
	group, ok := g.groups[groupID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	members := append([]string(nil), group.AlarmIDs...)
	g.mu.Unlock()

	allAcknowledged := true
	for _, alarmID := range members {
		if alarm, found := g.store.GetByID(alarmID); found && alarm.Status == alarms.StatusAcknowledged {
			// Already acknowledged individually; counts as done.
			continue
		}
		if !g.store.Acknowledge(ctx, alarmID, by) {
			allAcknowledged = false
		}
	}
	if !allAcknowledged {
		return false
	}

	g.mu.Lock()
	if group, ok := g.groups[groupID]; ok && group.Status == alarms.GroupStatusActive {
		group.Status = alarms.GroupStatusAcknowledged
	}
	g.mu.Unlock()
	return true
}
