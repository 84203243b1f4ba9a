package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	alertapi "github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/api"
	adb "github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/database"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/provider"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/campaign"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/evaluator"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/notify"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/recipients"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/config"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/middleware"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/traffic"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/transport/mqttx"
)

func main() {
	log.Info().Msg("Starting vikingscada api server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	alertDB, err := adb.New(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer alertDB.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	alerts := adb.NewAlertRepo(alertDB)
	sensors := adb.NewSensorRepo(alertDB)
	gateways := adb.NewGatewayRepo(alertDB)
	readings := adb.NewReadingRepo(alertDB)
	priorities := adb.NewPriorityRepo(alertDB)
	companies := adb.NewCompanyRepo(alertDB)

	resolver := recipients.NewResolver(priorities, companies)

	voice := provider.NewTwilioVoice(cfg.Providers.Voice)
	sms := provider.NewTwilioSMS(cfg.Providers.SMS)
	email := provider.NewHTTPEmail(cfg.Providers.Email)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stepDelay := parseDuration(cfg.Alerting.Campaign.StepDelay, 60*time.Second)
	guardWindow := parseDuration(cfg.Alerting.Campaign.GuardWindow, 60*time.Minute)
	pollInterval := parseDuration(cfg.Alerting.Campaign.PollInterval, time.Second)

	scheduler := campaign.NewRedisScheduler(rdb, pollInterval, cfg.Alerting.Campaign.Batch)
	controller := campaign.NewController(alerts, companies, voice, scheduler,
		cfg.Server.APIBase, stepDelay, guardWindow)
	go scheduler.Run(ctx, controller.Step)

	broadcaster := notify.NewBroadcaster(alerts, sms, email, cfg.Server.AppURL)

	mqttClient, err := mqttx.NewClient(&cfg.MQTT)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqttClient.Disconnect()

	commands := mqttx.NewCommandPublisher(mqttClient)
	live := mqttx.NewLiveEvents(mqttClient)
	gate := traffic.NewGate(traffic.NewPgStore(alertDB), commands, cfg.Traffic.TopicOverheadBytes)

	pipeline := mqttx.NewPipeline(gate, sensors, gateways, readings, companies,
		evaluator.New(sensors, readings), resolver, controller, broadcaster, live)
	if err := pipeline.Subscribe(mqttClient); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to telemetry topics")
	}
	defer pipeline.Wait()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.Authentication)
	alertapi.NewApi(router, cfg, alerts, sensors, companies, resolver, commands)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := router.Run(cfg.Server.BindAddr); err != nil {
		log.Fatal().Err(err).Msg("start vikingscada api server failed.")
	}
	log.Info().Msg("vikingscada api server exit...")
}

func parseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}
