package api

import (
	"github.com/gin-gonic/gin"

	adb "github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/database"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/recipients"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/config"
)

type Api struct{}

// NewApi registers the HTTP surface: provider webhooks, channel
// confirmations, priority management, and the alert query routes.
func NewApi(router *gin.Engine, cfg *config.Config, alerts *adb.AlertRepo, sensors *adb.SensorRepo, companies *adb.CompanyRepo, resolver *recipients.Resolver, commands DeviceCommander) *Api {
	api := &Api{}

	RegisterAckRoutes(router, &AckAPI{Alerts: alerts, Users: companies, APIBase: cfg.Server.APIBase})
	RegisterPriorityRoutes(router, &PriorityAPI{Resolver: resolver})
	RegisterAlertRoutes(router, &AlertAPI{Alerts: alerts, Sensors: sensors})
	RegisterCommandRoutes(router, &CommandAPI{Sensors: sensors, Commands: commands})

	return api
}
