package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	alarms "vesselwatch/internal/alarms/domain"
)

// HistoryRepository is an optional write-through archive for history
// records.
type HistoryRepository interface {
	Append(ctx context.Context, record *alarms.AlarmHistory) error
}

// RecordEventInput carries the fields of a new history record.
type RecordEventInput struct {
	AlarmID          string
	EventType        string
	UserID           string
	Details          string
	PreviousSeverity alarms.Severity
	NewSeverity      alarms.Severity
	SourceValue      float64
	ThresholdValue   float64
}

// HistoryService keeps an immutable event log per alarm and computes
// trend aggregates over a time range.
type HistoryService struct {
	store  *AlarmStore
	repo   HistoryRepository
	clock  Clock
	logger *log.Logger

	mu      sync.Mutex
	byAlarm map[string][]alarms.AlarmHistory
}

// HistoryOption customizes the history service.
type HistoryOption func(*HistoryService)

// WithHistoryRepository layers a write-through archive beneath the log.
func WithHistoryRepository(repo HistoryRepository) HistoryOption {
	return func(h *HistoryService) {
		h.repo = repo
	}
}

// WithHistoryClock overrides the default clock.
func WithHistoryClock(clock Clock) HistoryOption {
	return func(h *HistoryService) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHistoryLogger overrides the default logger.
func WithHistoryLogger(logger *log.Logger) HistoryOption {
	return func(h *HistoryService) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHistoryService constructs a history service.
func NewHistoryService(store *AlarmStore, opts ...HistoryOption) (*HistoryService, error) {
	if store == nil {
		return nil, errors.New("history service: nil store")
	}
	h := &HistoryService{
		store:   store,
		clock:   systemClock{},
		logger:  log.Default(),
		byAlarm: make(map[string][]alarms.AlarmHistory),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// RecordEvent appends an immutable record to the alarm's history.
func (h *HistoryService) RecordEvent(ctx context.Context, input RecordEventInput) (alarms.AlarmHistory, error) {
	if h == nil {
		return alarms.AlarmHistory{}, errors.New("history service: nil service")
	}
	if input.AlarmID == "" {
		return alarms.AlarmHistory{}, errors.New("history service: empty alarm id")
	}
	if input.EventType == "" {
		return alarms.AlarmHistory{}, errors.New("history service: empty event type")
	}
	record := alarms.AlarmHistory{
		ID:               uuid.New().String(),
		AlarmID:          input.AlarmID,
		EventType:        input.EventType,
		Timestamp:        h.clock.Now().UTC(),
		UserID:           input.UserID,
		Details:          input.Details,
		PreviousSeverity: input.PreviousSeverity,
		NewSeverity:      input.NewSeverity,
		SourceValue:      input.SourceValue,
		ThresholdValue:   input.ThresholdValue,
	}

	h.mu.Lock()
	h.byAlarm[input.AlarmID] = append(h.byAlarm[input.AlarmID], record)
	h.mu.Unlock()

	if h.repo != nil {
		if err := h.repo.Append(ctx, &record); err != nil {
			h.logger.Printf("history service: repository append failed: %v", err)
		}
	}
	return record, nil
}

// GetAlarmHistory returns the alarm's records ordered by timestamp
// ascending.
func (h *HistoryService) GetAlarmHistory(alarmID string) []alarms.AlarmHistory {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	records := append([]alarms.AlarmHistory(nil), h.byAlarm[alarmID]...)
	h.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

// GetTrends computes aggregates over alarms triggered in [start, end).
func (h *HistoryService) GetTrends(start, end time.Time) alarms.AlarmTrend {
	trend := alarms.AlarmTrend{
		Start:              start.UTC(),
		End:                end.UTC(),
		AlarmsBySeverity:   make(map[alarms.Severity]int),
		AlarmsBySourceType: make(map[string]int),
	}
	if h == nil {
		return trend
	}

	var inWindow []alarms.Alarm
	for _, alarm := range h.store.GetAll() {
		if alarm.TriggeredAt.Before(start) || !alarm.TriggeredAt.Before(end) {
			continue
		}
		inWindow = append(inWindow, alarm)
	}
	trend.TotalAlarms = len(inWindow)
	if trend.TotalAlarms == 0 {
		return trend
	}

	var ackTotal, clearTotal time.Duration
	var ackCount, clearCount int
	titleCounts := make(map[string]int)
	for _, alarm := range inWindow {
		trend.AlarmsBySeverity[alarm.Severity]++
		trend.AlarmsBySourceType[alarm.SourceType()]++
		titleCounts[alarm.Title]++
		if !alarm.AcknowledgedAt.IsZero() {
			ackTotal += alarm.AcknowledgedAt.Sub(alarm.TriggeredAt)
			ackCount++
		}
		if !alarm.ClearedAt.IsZero() {
			clearTotal += alarm.ClearedAt.Sub(alarm.TriggeredAt)
			clearCount++
		}
	}
	if ackCount > 0 {
		trend.AverageAcknowledgeTime = ackTotal / time.Duration(ackCount)
	}
	if clearCount > 0 {
		trend.AverageClearTime = clearTotal / time.Duration(clearCount)
	}

	type titleCount struct {
		title string
		count int
	}
	counts := make([]titleCount, 0, len(titleCounts))
	for title, count := range titleCounts {
		counts = append(counts, titleCount{title: title, count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].title < counts[j].title
	})
	if len(counts) > 10 {
		counts = counts[:10]
	}
	for _, entry := range counts {
		trend.MostFrequentAlarms = append(trend.MostFrequentAlarms, alarms.FrequentAlarm{
			Title:      entry.title,
			Count:      entry.count,
			Percentage: 100 * float64(entry.count) / float64(trend.TotalAlarms),
		})
	}
	return trend
}
