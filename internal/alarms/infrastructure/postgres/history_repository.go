package postgres

import (
	"context"
	"database/sql"
	"errors"

	alarms "vesselwatch/internal/alarms/domain"
)

// HistoryRepository is a Postgres write-through store for alarm
// history records.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts a history record.
func (r *HistoryRepository) Append(ctx context.Context, record *alarms.AlarmHistory) error {
	if r == nil || r.db == nil {
		return errors.New("history repo: nil db")
	}
	if record == nil {
		return errors.New("history repo: nil record")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarm_history (
	id, alarm_id, event_type, occurred_at, user_id, details,
	previous_severity, new_severity, source_value, threshold_value
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10
)`, record.ID, record.AlarmID, record.EventType, record.Timestamp.UTC(),
		nullableString(record.UserID), nullableString(record.Details),
		nullableString(string(record.PreviousSeverity)), nullableString(string(record.NewSeverity)),
		record.SourceValue, record.ThresholdValue)
	return err
}

// ListByAlarm returns history records for one alarm in chronological order.
func (r *HistoryRepository) ListByAlarm(ctx context.Context, alarmID string) ([]alarms.AlarmHistory, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	if alarmID == "" {
		return nil, errors.New("history repo: empty alarm id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, alarm_id, event_type, occurred_at, user_id, details,
	previous_severity, new_severity, source_value, threshold_value
FROM alarm_history
WHERE alarm_id = $1
ORDER BY occurred_at ASC`, alarmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.AlarmHistory
	for rows.Next() {
		var record alarms.AlarmHistory
		var userID, details, previous, next sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.AlarmID,
			&record.EventType,
			&record.Timestamp,
			&userID,
			&details,
			&previous,
			&next,
			&record.SourceValue,
			&record.ThresholdValue,
		); err != nil {
			return nil, err
		}
		record.Timestamp = record.Timestamp.UTC()
		record.UserID = userID.String
		record.Details = details.String
		record.PreviousSeverity = alarms.Severity(previous.String)
		record.NewSeverity = alarms.Severity(next.String)
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
