package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

type fakeWidgetSource struct {
	widgets []*model.Widget
}

func (f *fakeWidgetSource) WidgetsBySensor(_ context.Context, _ string) ([]*model.Widget, error) {
	return f.widgets, nil
}

type fakeReadingSource struct {
	value float64
	found bool
}

func (f *fakeReadingSource) Latest(_ context.Context, _ string) (float64, bool, error) {
	return f.value, f.found, nil
}

func thresholdWidget(id string, normal, danger float64) *model.Widget {
	return &model.Widget{
		ID:    id,
		Title: "Pressure " + id,
		Rule:  &model.SensorRule{Kind: model.RuleThreshold, Normal: normal, Danger: danger},
	}
}

func TestEvaluateThreshold(t *testing.T) {
	ctx := context.Background()
	sensor := &model.Sensor{ID: "s1"}

	t.Run("DangerTier", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{thresholdWidget("w1", 50, 80)}}, &fakeReadingSource{})

		events, configured, err := ev.Evaluate(ctx, sensor, 95)
		require.NoError(t, err)
		assert.True(t, configured)
		require.Len(t, events, 1)
		assert.Equal(t, model.AlertDanger, events[0].Type)
		assert.Equal(t, "w1", events[0].WidgetID)
		assert.Equal(t, 80.0, events[0].AlertValue)
	})

	t.Run("NormalTier", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{thresholdWidget("w1", 50, 80)}}, &fakeReadingSource{})

		events, _, err := ev.Evaluate(ctx, sensor, 60)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.AlertNormal, events[0].Type)
		assert.Equal(t, 50.0, events[0].AlertValue)
	})

	t.Run("BelowNormalFiresNothing", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{thresholdWidget("w1", 50, 80)}}, &fakeReadingSource{})

		events, configured, err := ev.Evaluate(ctx, sensor, 10)
		require.NoError(t, err)
		assert.True(t, configured)
		assert.Empty(t, events)
	})

	t.Run("TiersAreMutuallyExclusivePerWidget", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{thresholdWidget("w1", 50, 80)}}, &fakeReadingSource{})

		events, _, err := ev.Evaluate(ctx, sensor, 80)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.AlertDanger, events[0].Type)
	})

	t.Run("BothTiersAcrossDifferentWidgets", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{
			thresholdWidget("w1", 50, 80),
			thresholdWidget("w2", 30, 70),
		}}, &fakeReadingSource{})

		events, _, err := ev.Evaluate(ctx, sensor, 75)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, model.AlertNormal, events[0].Type)
		assert.Equal(t, model.AlertDanger, events[1].Type)
	})

	t.Run("NoWidgetsReportsUnconfigured", func(t *testing.T) {
		ev := New(&fakeWidgetSource{}, &fakeReadingSource{})

		events, configured, err := ev.Evaluate(ctx, sensor, 95)
		require.NoError(t, err)
		assert.False(t, configured)
		assert.Empty(t, events)
	})
}

func TestEvaluateBitmask(t *testing.T) {
	ctx := context.Background()
	sensor := &model.Sensor{ID: "s1", Bitmask: "0,2"}
	widget := &model.Widget{
		ID:    "w1",
		Title: "Door contact",
		Rule:  &model.SensorRule{Kind: model.RuleBitmask, Positions: map[int]int{0: 1, 2: 0}},
	}

	t.Run("NoPriorReadingFiresOnMatch", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{widget}}, &fakeReadingSource{found: false})

		// bit 0 = 1 (matches expected 1), bit 2 = 0 (matches expected 0)
		events, _, err := ev.Evaluate(ctx, sensor, 0b001)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, 0, events[0].Bit)
		assert.Equal(t, 1, events[0].ExpectedBit)
		assert.Equal(t, "On", events[0].BitLabel())
		assert.Equal(t, 2, events[1].Bit)
		assert.Equal(t, "Off", events[1].BitLabel())
	})

	t.Run("EdgeTriggeredOnTransition", func(t *testing.T) {
		// previous reading had bit 0 = 0, bit 2 = 0
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{widget}}, &fakeReadingSource{value: 0b000, found: true})

		events, _, err := ev.Evaluate(ctx, sensor, 0b001)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 0, events[0].Bit)
	})

	t.Run("SameLevelNeverRefires", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{widget}}, &fakeReadingSource{value: 0b001, found: true})

		events, _, err := ev.Evaluate(ctx, sensor, 0b001)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("TransitionAwayFromExpectedIsSilent", func(t *testing.T) {
		ev := New(&fakeWidgetSource{widgets: []*model.Widget{widget}}, &fakeReadingSource{value: 0b101, found: true})

		// bit 0 drops to 0 (expected 1: no fire), bit 2 drops to 0 (expected 0: fire)
		events, _, err := ev.Evaluate(ctx, sensor, 0b000)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 2, events[0].Bit)
	})
}

func TestGetBit(t *testing.T) {
	assert.Equal(t, 1, GetBit(0b101, 0))
	assert.Equal(t, 0, GetBit(0b101, 1))
	assert.Equal(t, 1, GetBit(0b101, 2))
	assert.Equal(t, 0, GetBit(0b101, 63))
	assert.Equal(t, 0, GetBit(5, -1))
}

func TestParseValue(t *testing.T) {
	t.Run("MultiplierApplies", func(t *testing.T) {
		sensor := &model.Sensor{ValueMultiplier: 0.5}
		value, bits := ParseValue(sensor, 90)
		assert.Nil(t, bits)
		assert.Equal(t, 45.0, value)
	})

	t.Run("ZeroMultiplierMeansUnset", func(t *testing.T) {
		sensor := &model.Sensor{}
		value, _ := ParseValue(sensor, 90)
		assert.Equal(t, 90.0, value)
	})

	t.Run("EngineeringRangeScaling", func(t *testing.T) {
		from, to := 0.0, 100.0
		sensor := &model.Sensor{ValueMultiplier: 1, EngineerValueFrom: &from, EngineerValueTo: &to}

		value, _ := ParseValue(sensor, 2048)
		assert.Equal(t, 50.0, value)
	})

	t.Run("EngineeringRangeClampsToBounds", func(t *testing.T) {
		from, to := 10.0, 100.0
		sensor := &model.Sensor{ValueMultiplier: 1, EngineerValueFrom: &from, EngineerValueTo: &to}

		high, _ := ParseValue(sensor, 8192)
		assert.Equal(t, 100.0, high)

		low, _ := ParseValue(sensor, -5000)
		assert.Equal(t, 10.0, low)
	})

	t.Run("BitmaskSensorDecodesPositions", func(t *testing.T) {
		sensor := &model.Sensor{Bitmask: "0, 3,bogus"}
		_, bits := ParseValue(sensor, 0b1001)
		require.Len(t, bits, 2)
		assert.Equal(t, model.BitReading{Position: 0, State: 1}, bits[0])
		assert.Equal(t, model.BitReading{Position: 3, State: 1}, bits[1])
	})
}
