package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	adb "github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/database"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// AlertCalendarSource aggregates stored alert records per day.
type AlertCalendarSource interface {
	CountByDay(ctx context.Context, sensorID string, from, to time.Time) ([]adb.DayCount, error)
}

// SensorSource loads sensors and their widget rules.
type SensorSource interface {
	GetSensor(ctx context.Context, id string) (*model.Sensor, error)
	WidgetsBySensor(ctx context.Context, sensorID string) ([]*model.Widget, error)
}

type AlertAPI struct {
	Alerts  AlertCalendarSource
	Sensors SensorSource
}

func RegisterAlertRoutes(router *gin.Engine, api *AlertAPI) {
	router.GET("/alert/available/:sensor_id", api.Available)
	router.GET("/alert/calendar/:sensor_id", api.Calendar)
}

// Available reports whether a new alert rule may be attached to the sensor:
// at most one widget per sensor line carries a rule. exclude_widget lets the
// rule editor re-save its own widget.
func (api *AlertAPI) Available(c *gin.Context) {
	ctx := c.Request.Context()
	sensorID := c.Param("sensor_id")

	sensor, err := api.Sensors.GetSensor(ctx, sensorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	if sensor == nil {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "sensor not found"))
		return
	}

	widgets, err := api.Sensors.WidgetsBySensor(ctx, sensorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}

	available := true
	exclude := c.Query("exclude_widget")
	for _, widget := range widgets {
		if widget.ID == exclude {
			continue
		}
		if widget.Rule != nil {
			available = false
			break
		}
	}

	// field spelling predates this service; deployed dashboards parse it
	c.JSON(http.StatusOK, gin.H{"avaliable": available})
}

// Calendar returns, for each requested month, one severity digit per day:
// 0 quiet, 1 warnings only, 2 at least one danger alert.
func (api *AlertAPI) Calendar(c *gin.Context) {
	ctx := c.Request.Context()
	sensorID := c.Param("sensor_id")

	result := make(map[string][]int)
	for _, raw := range strings.Split(c.Query("date"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		anchor, err := time.Parse("2006-01-02", raw)
		if err != nil {
			anchor = time.Now().UTC()
		}
		monthStart := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)

		counts, err := api.Alerts.CountByDay(ctx, sensorID, monthStart, monthEnd)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
			return
		}

		severity := make(map[int]int)
		for _, count := range counts {
			if count.Count == 0 {
				continue
			}
			day := count.Day.Day()
			switch count.Type {
			case model.AlertDanger:
				severity[day] = 2
			case model.AlertWarning:
				if severity[day] < 1 {
					severity[day] = 1
				}
			}
		}

		days := make([]int, monthEnd.AddDate(0, 0, -1).Day())
		for i := range days {
			days[i] = severity[i+1]
		}
		result[raw] = days
	}

	c.JSON(http.StatusOK, result)
}
