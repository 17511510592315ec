package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "vesselwatch/internal/alarms/domain"
)

// AlarmRepository is a Postgres write-through store for alarm records.
// The in-memory store remains the source of truth; writes here are
// best effort and the caller logs failures.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// Create inserts an alarm.
func (r *AlarmRepository) Create(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarms (
	id, title, description, severity, status, vessel_id, engine_id, sensor_id,
	rule_id, triggered_at, escalation_level, group_id, source_value, threshold_value,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14,
	$15, $16
)`, alarm.ID, alarm.Title, alarm.Description, string(alarm.Severity), alarm.Status,
		alarm.VesselID, alarm.EngineID, alarm.SensorID,
		alarm.RuleID, alarm.TriggeredAt.UTC(), alarm.EscalationLevel, nullableString(alarm.GroupID),
		alarm.SourceValue, alarm.ThresholdValue, alarm.CreatedAt.UTC(), alarm.UpdatedAt.UTC())
	return err
}

// MarkAcknowledged records an acknowledgement.
func (r *AlarmRepository) MarkAcknowledged(ctx context.Context, id, by string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET status = $2, acknowledged_at = $3, acknowledged_by = $4, updated_at = $3
WHERE id = $1`, id, alarms.StatusAcknowledged, at.UTC(), by)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkCleared records a clear.
func (r *AlarmRepository) MarkCleared(ctx context.Context, id, by string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET status = $2, cleared_at = $3, cleared_by = $4, updated_at = $3
WHERE id = $1`, id, alarms.StatusCleared, at.UTC(), by)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateSeverity records an escalation.
func (r *AlarmRepository) UpdateSeverity(ctx context.Context, id string, severity alarms.Severity, level int, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET severity = $2, escalation_level = $3, updated_at = $4
WHERE id = $1`, id, string(severity), level, at.UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateGroup records a group assignment.
func (r *AlarmRepository) UpdateGroup(ctx context.Context, id, groupID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET group_id = $2, updated_at = $3
WHERE id = $1`, id, nullableString(groupID), at.UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetByID loads an alarm by id.
func (r *AlarmRepository) GetByID(ctx context.Context, id string) (*alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if id == "" {
		return nil, errors.New("alarm repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, description, severity, status, vessel_id, engine_id, sensor_id,
	rule_id, triggered_at, acknowledged_at, acknowledged_by, cleared_at, cleared_by,
	escalation_level, group_id, source_value, threshold_value, created_at, updated_at
FROM alarms
WHERE id = $1
LIMIT 1`, id)
	alarm, err := scanAlarm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alarm, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (*alarms.Alarm, error) {
	var alarm alarms.Alarm
	var severity, status string
	var ackAt, clearAt sql.NullTime
	var ackBy, clearBy, groupID sql.NullString
	if err := row.Scan(
		&alarm.ID,
		&alarm.Title,
		&alarm.Description,
		&severity,
		&status,
		&alarm.VesselID,
		&alarm.EngineID,
		&alarm.SensorID,
		&alarm.RuleID,
		&alarm.TriggeredAt,
		&ackAt,
		&ackBy,
		&clearAt,
		&clearBy,
		&alarm.EscalationLevel,
		&groupID,
		&alarm.SourceValue,
		&alarm.ThresholdValue,
		&alarm.CreatedAt,
		&alarm.UpdatedAt,
	); err != nil {
		return nil, err
	}
	alarm.Severity = alarms.Severity(severity)
	alarm.Status = status
	alarm.TriggeredAt = alarm.TriggeredAt.UTC()
	alarm.CreatedAt = alarm.CreatedAt.UTC()
	alarm.UpdatedAt = alarm.UpdatedAt.UTC()
	if ackAt.Valid {
		alarm.AcknowledgedAt = ackAt.Time.UTC()
	}
	if ackBy.Valid {
		alarm.AcknowledgedBy = ackBy.String
	}
	if clearAt.Valid {
		alarm.ClearedAt = clearAt.Time.UTC()
	}
	if clearBy.Valid {
		alarm.ClearedBy = clearBy.String
	}
	if groupID.Valid {
		alarm.GroupID = groupID.String
	}
	return &alarm, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return nil
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
