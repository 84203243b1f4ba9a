package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adb "github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/database"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

type fakeCalendarSource struct {
	counts []adb.DayCount
}

func (f *fakeCalendarSource) CountByDay(ctx context.Context, sensorID string, from, to time.Time) ([]adb.DayCount, error) {
	return f.counts, nil
}

type fakeSensorSource struct {
	sensors map[string]*model.Sensor
	widgets map[string][]*model.Widget
}

func (f *fakeSensorSource) GetSensor(ctx context.Context, id string) (*model.Sensor, error) {
	return f.sensors[id], nil
}

func (f *fakeSensorSource) WidgetsBySensor(ctx context.Context, sensorID string) ([]*model.Widget, error) {
	return f.widgets[sensorID], nil
}

func newAlertRouter(alerts *fakeCalendarSource, sensors *fakeSensorSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterAlertRoutes(router, &AlertAPI{Alerts: alerts, Sensors: sensors})
	return router
}

func TestAvailable(t *testing.T) {
	threshold := &model.SensorRule{Kind: model.RuleThreshold, Normal: 50, Danger: 80}
	sensors := &fakeSensorSource{
		sensors: map[string]*model.Sensor{"s1": {ID: "s1"}},
		widgets: map[string][]*model.Widget{
			"s1": {
				{ID: "w1", SensorID: "s1", Rule: threshold},
				{ID: "w2", SensorID: "s1"},
			},
		},
	}
	router := newAlertRouter(&fakeCalendarSource{}, sensors)

	t.Run("taken by another widget", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert/available/s1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"avaliable":false}`, w.Body.String())
	})

	t.Run("own widget excluded", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert/available/s1?exclude_widget=w1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"avaliable":true}`, w.Body.String())
	})

	t.Run("unknown sensor", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert/available/ghost", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCalendar(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
	}
	alerts := &fakeCalendarSource{counts: []adb.DayCount{
		{Day: day(3), Type: model.AlertWarning, Count: 2},
		{Day: day(3), Type: model.AlertDanger, Count: 1},
		{Day: day(10), Type: model.AlertWarning, Count: 1},
	}}
	router := newAlertRouter(alerts, &fakeSensorSource{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert/calendar/s1?date=2026-03-01", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var result map[string][]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	days := result["2026-03-01"]
	require.Len(t, days, 31)
	assert.Equal(t, 2, days[2])
	assert.Equal(t, 1, days[9])
	assert.Equal(t, 0, days[0])
	assert.Equal(t, 0, days[30])
}

func TestCalendarMultipleMonths(t *testing.T) {
	router := newAlertRouter(&fakeCalendarSource{}, &fakeSensorSource{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert/calendar/s1?date=2026-02-01,2026-04-01", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var result map[string][]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result["2026-02-01"], 28)
	assert.Len(t, result["2026-04-01"], 30)
}
