package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// DeviceCommander actuates field devices over the device transport.
type DeviceCommander interface {
	PublishSwitch(ctx context.Context, sensorID, registerAddress string, args any) error
}

type SensorLoader interface {
	GetSensor(ctx context.Context, id string) (*model.Sensor, error)
}

type CommandAPI struct {
	Sensors  SensorLoader
	Commands DeviceCommander
}

func RegisterCommandRoutes(router *gin.Engine, api *CommandAPI) {
	router.POST("/sensor/:sensor_id/command", api.SendCommand)
}

type sensorCommandRequest struct {
	CommandName string `json:"command_name"`
	Args        any    `json:"args"`
}

// SendCommand forwards an actuation command to the sensor's modbus
// register. Only the switch command exists; anything else is acknowledged
// and dropped, matching how field gateways treat unknown commands.
func (api *CommandAPI) SendCommand(c *gin.Context) {
	ctx := c.Request.Context()

	sensor, err := api.Sensors.GetSensor(ctx, c.Param("sensor_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	if sensor == nil {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "sensor not found"))
		return
	}

	var req sensorCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_PARAMETER", "invalid command body"))
		return
	}

	if req.CommandName == "switch" && req.Args != nil {
		if err := api.Commands.PublishSwitch(ctx, sensor.ID, sensor.RegisterAddress, req.Args); err != nil {
			log.Error().Err(err).Str("sensor_id", sensor.ID).Msg("switch command publish failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
