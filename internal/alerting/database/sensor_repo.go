package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// SensorRepo is the data access layer for sensors and their widgets.
type SensorRepo struct {
	db *Database
}

func NewSensorRepo(db *Database) *SensorRepo {
	return &SensorRepo{db: db}
}

// GetSensor returns one sensor by id, or nil when it does not exist.
func (r *SensorRepo) GetSensor(ctx context.Context, id string) (*model.Sensor, error) {
	query := `
		SELECT id, site_id, name, bitmask, value_multiplier,
		       engineer_value_from, engineer_value_to, modbus_register_address
		FROM sensors
		WHERE id = $1
	`

	sensor := new(model.Sensor)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sensor.ID, &sensor.SiteID, &sensor.Name, &sensor.Bitmask,
		&sensor.ValueMultiplier, &sensor.EngineerValueFrom, &sensor.EngineerValueTo,
		&sensor.RegisterAddress)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor: %w", err)
	}
	return sensor, nil
}

// WidgetsBySensor returns the sensor's live widgets with their rules
// normalized. Widgets whose stored rule cannot be parsed come back with a
// nil Rule and are skipped by the evaluator.
func (r *SensorRepo) WidgetsBySensor(ctx context.Context, sensorID string) ([]*model.Widget, error) {
	query := `
		SELECT id, sensor_id, title, rule
		FROM widgets
		WHERE sensor_id = $1 AND deleted = false
	`

	rows, err := r.db.QueryContext(ctx, query, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query widgets: %w", err)
	}
	defer rows.Close()

	var widgets []*model.Widget
	for rows.Next() {
		widget := new(model.Widget)
		var raw []byte
		if err := rows.Scan(&widget.ID, &widget.SensorID, &widget.Title, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan widget: %w", err)
		}
		widget.Rule = normalizeRule(raw)
		widgets = append(widgets, widget)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating widgets: %w", err)
	}
	return widgets, nil
}

// normalizeRule converts the stored rule JSON into its tagged variant.
// Threshold rules carry normal and danger bounds; anything else is tried as
// a bitmask mapping, which historically arrived either as an object or as a
// string-encoded object.
func normalizeRule(raw []byte) *model.SensorRule {
	if len(raw) == 0 {
		return nil
	}

	var th struct {
		Lowest *float64 `json:"lowest"`
		Normal *float64 `json:"normal"`
		Danger *float64 `json:"danger"`
	}
	if err := json.Unmarshal(raw, &th); err == nil && th.Normal != nil && th.Danger != nil {
		rule := &model.SensorRule{
			Kind:   model.RuleThreshold,
			Normal: *th.Normal,
			Danger: *th.Danger,
		}
		if th.Lowest != nil {
			rule.Low = *th.Lowest
		}
		return rule
	}

	rule, err := model.ParseBitmaskRule(raw)
	if err != nil {
		return nil
	}
	return rule
}
