package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// AlertRepo is the data access layer for the append-only alert log.
type AlertRepo struct {
	db *Database
}

func NewAlertRepo(db *Database) *AlertRepo {
	return &AlertRepo{db: db}
}

const alertColumns = `id, type, sensor_id, widget_id, widget_title, sensor_value,
		alert_value, bit, company_id, users, call_sid, sms_code, email_code,
		readed, user_readed, created_at`

// Insert persists a new alert record, assigning its id and creation time.
func (r *AlertRepo) Insert(ctx context.Context, rec *model.AlertRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	users, err := json.Marshal(rec.Users)
	if err != nil {
		return fmt.Errorf("failed to marshal alert recipients: %w", err)
	}

	query := `
		INSERT INTO alerts (id, type, sensor_id, widget_id, widget_title,
			sensor_value, alert_value, bit, company_id, users,
			call_sid, sms_code, email_code, readed, user_readed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Type, rec.SensorID, rec.WidgetID, rec.WidgetTitle,
		rec.SensorValue, rec.AlertValue, rec.Bit, rec.CompanyID, users,
		rec.CallSID, rec.SMSCode, rec.EmailCode, rec.Read, rec.ReadBy, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Get returns one alert by id, or nil when it does not exist.
func (r *AlertRepo) Get(ctx context.Context, id string) (*model.AlertRecord, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// LatestWithCallSID returns the most recent alert for the sensor line that
// already carries a call SID and was created at or after since. For bitmask
// sensors the line is (sensor, bit); for scalar sensors bit is nil and only
// bit-less alerts match. Returns nil when no such alert exists.
func (r *AlertRepo) LatestWithCallSID(ctx context.Context, sensorID string, bit *int, since time.Time) (*model.AlertRecord, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE sensor_id = $1
		  AND call_sid <> ''
		  AND created_at >= $2
		  AND (($3::int IS NULL AND bit IS NULL) OR bit = $3::int)
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, sensorID, since, bit))
}

// AttachCallSID records the SID of the call placed for an alert.
func (r *AlertRepo) AttachCallSID(ctx context.Context, id, sid string) error {
	query := `UPDATE alerts SET call_sid = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sid); err != nil {
		return fmt.Errorf("failed to attach call sid: %w", err)
	}
	return nil
}

// AckResult reports the outcome of an acknowledgment attempt. When Won is
// false, ReadBy names whoever acknowledged the alert first.
type AckResult struct {
	Alert  *model.AlertRecord
	Won    bool
	ReadBy string
}

// AcknowledgeByCallSID marks the alert carrying the SID as read. The
// conditional update decides the winner when two acknowledgments race.
// Returns nil when no alert carries the SID.
func (r *AlertRepo) AcknowledgeByCallSID(ctx context.Context, sid, userName string) (*AckResult, error) {
	return r.acknowledge(ctx, "call_sid", sid, userName)
}

// AcknowledgeBySMSCode marks the alert carrying the SMS reply code as read.
func (r *AlertRepo) AcknowledgeBySMSCode(ctx context.Context, code, userName string) (*AckResult, error) {
	return r.acknowledge(ctx, "sms_code", code, userName)
}

// AcknowledgeByEmailCode marks the alert carrying the email link code as read.
func (r *AlertRepo) AcknowledgeByEmailCode(ctx context.Context, code, userName string) (*AckResult, error) {
	return r.acknowledge(ctx, "email_code", code, userName)
}

func (r *AlertRepo) acknowledge(ctx context.Context, column, token, userName string) (*AckResult, error) {
	if token == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
		UPDATE alerts SET readed = true, user_readed = $2
		WHERE %s = $1 AND readed = false
	`, column)

	res, err := r.db.ExecContext(ctx, query, token, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read acknowledge result: %w", err)
	}

	rec, err := r.scanOne(r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT `+alertColumns+` FROM alerts WHERE %s = $1`, column), token))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if affected > 0 {
		return &AckResult{Alert: rec, Won: true, ReadBy: userName}, nil
	}
	return &AckResult{Alert: rec, Won: false, ReadBy: rec.ReadBy}, nil
}

// DayCount is one cell of the per-day alert calendar.
type DayCount struct {
	Day   time.Time
	Type  model.AlertType
	Count int
}

// CountByDay aggregates the sensor's alerts per day and type within [from, to).
func (r *AlertRepo) CountByDay(ctx context.Context, sensorID string, from, to time.Time) ([]DayCount, error) {
	query := `
		SELECT date_trunc('day', created_at) AS day, type, COUNT(*)
		FROM alerts
		WHERE sensor_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY day, type
		ORDER BY day
	`

	rows, err := r.db.QueryContext(ctx, query, sensorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert calendar: %w", err)
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Type, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan alert calendar row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert calendar: %w", err)
	}
	return counts, nil
}

func (r *AlertRepo) scanOne(row *sql.Row) (*model.AlertRecord, error) {
	rec := new(model.AlertRecord)
	var users []byte
	err := row.Scan(&rec.ID, &rec.Type, &rec.SensorID, &rec.WidgetID, &rec.WidgetTitle,
		&rec.SensorValue, &rec.AlertValue, &rec.Bit, &rec.CompanyID, &users,
		&rec.CallSID, &rec.SMSCode, &rec.EmailCode, &rec.Read, &rec.ReadBy, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	if len(users) > 0 {
		if err := json.Unmarshal(users, &rec.Users); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert recipients: %w", err)
		}
	}
	return rec, nil
}
