package evaluator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// adcRange is the full scale of the gateway ADC used for engineering
// value conversion.
const adcRange = 4096

// WidgetSource loads the rule-bearing widgets attached to a sensor.
type WidgetSource interface {
	WidgetsBySensor(ctx context.Context, sensorID string) ([]*model.Widget, error)
}

// ReadingSource loads the most recent stored raw value for a sensor.
type ReadingSource interface {
	Latest(ctx context.Context, sensorID string) (value float64, found bool, err error)
}

// Evaluator checks incoming sensor values against widget alert rules and
// emits alert events. It never dispatches anything itself.
type Evaluator struct {
	widgets  WidgetSource
	readings ReadingSource
}

func New(widgets WidgetSource, readings ReadingSource) *Evaluator {
	return &Evaluator{widgets: widgets, readings: readings}
}

// Evaluate runs every rule attached to the sensor against the raw value.
// The returned events are empty when nothing fired; configured reports
// false when the sensor has no widgets at all, so callers can tell
// "nothing configured" from "nothing fired".
func (e *Evaluator) Evaluate(ctx context.Context, sensor *model.Sensor, raw int64) (events []model.AlertEvent, configured bool, err error) {
	widgets, err := e.widgets.WidgetsBySensor(ctx, sensor.ID)
	if err != nil {
		return nil, false, fmt.Errorf("load widgets for sensor %s: %w", sensor.ID, err)
	}
	if len(widgets) == 0 {
		return nil, false, nil
	}

	bitmask := sensor.Bitmask != ""
	var (
		prevValue float64
		prevFound bool
	)
	if bitmask {
		prevValue, prevFound, err = e.readings.Latest(ctx, sensor.ID)
		if err != nil {
			return nil, true, fmt.Errorf("load previous reading for sensor %s: %w", sensor.ID, err)
		}
	}

	for _, widget := range widgets {
		rule := widget.Rule
		if rule == nil {
			continue
		}
		switch {
		case !bitmask && rule.Kind == model.RuleThreshold:
			events = append(events, evalThreshold(widget, rule, parseScalar(sensor, raw))...)
		case bitmask && rule.Kind == model.RuleBitmask:
			events = append(events, evalBitmask(widget, rule, DecodeBits(sensor, raw), prevValue, prevFound)...)
		}
	}
	return events, true, nil
}

// evalThreshold emits at most one event per widget: the tiers are mutually
// exclusive since the danger check uses >=. A low tier exists in the stored
// rule shape but is not evaluated.
func evalThreshold(widget *model.Widget, rule *model.SensorRule, value float64) []model.AlertEvent {
	if value >= rule.Normal && value < rule.Danger {
		return []model.AlertEvent{{
			Type:        model.AlertNormal,
			WidgetID:    widget.ID,
			WidgetTitle: widget.Title,
			AlertValue:  rule.Normal,
		}}
	}
	if value >= rule.Danger {
		return []model.AlertEvent{{
			Type:        model.AlertDanger,
			WidgetID:    widget.ID,
			WidgetTitle: widget.Title,
			AlertValue:  rule.Danger,
		}}
	}
	return nil
}

// evalBitmask is edge-triggered: with a prior reading, a bit fires only when
// it changed since that reading and now equals the expected state. Without
// one, it fires whenever the current state matches.
func evalBitmask(widget *model.Widget, rule *model.SensorRule, bits []model.BitReading, prevValue float64, prevFound bool) []model.AlertEvent {
	var events []model.AlertEvent
	for _, bit := range bits {
		expected, cares := rule.Positions[bit.Position]
		if !cares {
			continue
		}
		if prevFound && GetBit(int64(prevValue), bit.Position) == bit.State {
			continue
		}
		if bit.State == expected {
			events = append(events, model.AlertEvent{
				Type:        model.AlertBitmask,
				WidgetID:    widget.ID,
				WidgetTitle: widget.Title,
				Bit:         bit.Position,
				ExpectedBit: expected,
			})
		}
	}
	return events
}

// GetBit extracts the bit at position from a raw reading, LSB first.
func GetBit(value int64, position int) int {
	if position < 0 || position > 62 {
		return 0
	}
	return int((value >> uint(position)) & 1)
}

// DecodeBits expands a raw reading into the sensor's configured bit
// positions. Positions come from the sensor's comma-separated bitmask
// field; malformed entries are skipped.
func DecodeBits(sensor *model.Sensor, raw int64) []model.BitReading {
	if sensor.Bitmask == "" {
		return nil
	}
	parts := strings.Split(sensor.Bitmask, ",")
	bits := make([]model.BitReading, 0, len(parts))
	for _, part := range parts {
		pos, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		bits = append(bits, model.BitReading{Position: pos, State: GetBit(raw, pos)})
	}
	return bits
}

// parseScalar converts a raw reading into its display value: the value
// multiplier applies first, then the optional ADC-to-engineering-range
// conversion clamped to [from, to].
func parseScalar(sensor *model.Sensor, raw int64) float64 {
	value := float64(raw)
	if sensor.ValueMultiplier != 0 {
		value *= sensor.ValueMultiplier
	}

	if sensor.EngineerValueFrom != nil && sensor.EngineerValueTo != nil {
		from, to := *sensor.EngineerValueFrom, *sensor.EngineerValueTo
		span := to - from
		if span != 0 {
			scaled := round3(value*span/adcRange) + from
			switch {
			case scaled <= 0:
				value = from
			case scaled >= to:
				value = to
			default:
				value = round3(scaled)
			}
		}
	}
	return value
}

// ParseValue is the display-value form of a reading: decoded bits for
// bitmask sensors, the scaled scalar otherwise.
func ParseValue(sensor *model.Sensor, raw int64) (value float64, bits []model.BitReading) {
	if sensor.Bitmask != "" {
		return 0, DecodeBits(sensor, raw)
	}
	return parseScalar(sensor, raw), nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
