package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Redis     RedisConfig     `yaml:"redis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Providers ProvidersConfig `yaml:"providers"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Traffic   TrafficConfig   `yaml:"traffic"`
}

type ServerConfig struct {
	BindAddr string `yaml:"bindAddr"`
	// APIBase is the externally reachable base URL used to build voice
	// callback URLs handed to the call provider.
	APIBase string `yaml:"apiBase"`
	// AppURL is the user-facing base URL embedded in SMS/email confirm links.
	AppURL string `yaml:"appURL"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientID"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ProvidersConfig struct {
	Voice VoiceProviderConfig `yaml:"voice"`
	SMS   SMSProviderConfig   `yaml:"sms"`
	Email EmailProviderConfig `yaml:"email"`
}

type VoiceProviderConfig struct {
	AccountSID string `yaml:"accountSID"`
	AuthToken  string `yaml:"authToken"`
	From       string `yaml:"from"`
	BaseURL    string `yaml:"baseURL"` // override for tests
}

type SMSProviderConfig struct {
	AccountSID string `yaml:"accountSID"`
	AuthToken  string `yaml:"authToken"`
	From       string `yaml:"from"`
	BaseURL    string `yaml:"baseURL"`
}

type EmailProviderConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"apiKey"`
	FromName  string `yaml:"fromName"`
	FromEmail string `yaml:"fromEmail"`
	ReplyTo   string `yaml:"replyTo"`
}

type AlertingConfig struct {
	Campaign CampaignConfig `yaml:"campaign"`
}

type CampaignConfig struct {
	StepDelay    string `yaml:"stepDelay"`    // e.g. "60s"
	GuardWindow  string `yaml:"guardWindow"`  // e.g. "60m"
	PollInterval string `yaml:"pollInterval"` // scheduler queue poll, e.g. "1s"
	Batch        int    `yaml:"batch"`
}

type TrafficConfig struct {
	// TopicOverheadBytes approximates per-message transport framing cost
	// added to each payload's byte length before debiting.
	TopicOverheadBytes int `yaml:"topicOverheadBytes"`
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()

	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
			APIBase:  getEnv("API_BASE_URL", "http://localhost:8080"),
			AppURL:   getEnv("APP_URL", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "vikingscada"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "debug"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID: getEnv("MQTT_CLIENT_ID", "BackendConnectionGatewaysProduction"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
		},
		Providers: ProvidersConfig{
			Voice: VoiceProviderConfig{
				AccountSID: getEnv("TWILIO_SID", ""),
				AuthToken:  getEnv("TWILIO_TOKEN", ""),
				From:       getEnv("TWILIO_VOICE_FROM", "+19183471847"),
			},
			SMS: SMSProviderConfig{
				AccountSID: getEnv("TWILIO_SID", ""),
				AuthToken:  getEnv("TWILIO_TOKEN", ""),
				From:       getEnv("TWILIO_PHONE", ""),
			},
			Email: EmailProviderConfig{
				Endpoint:  getEnv("EMAIL_API_ENDPOINT", ""),
				APIKey:    getEnv("EMAIL_API_KEY", ""),
				FromName:  getEnv("EMAIL_FROM_NAME", "Viking SCADA"),
				FromEmail: getEnv("EMAIL_FROM_ADDR", "alerts@vikingscada.com"),
				ReplyTo:   getEnv("EMAIL_REPLY_TO", ""),
			},
		},
		Alerting: AlertingConfig{
			Campaign: CampaignConfig{
				StepDelay:    getEnv("CAMPAIGN_STEP_DELAY", "60s"),
				GuardWindow:  getEnv("CAMPAIGN_GUARD_WINDOW", "60m"),
				PollInterval: getEnv("CAMPAIGN_POLL_INTERVAL", "1s"),
				Batch:        getEnvInt("CAMPAIGN_BATCH", 100),
			},
		},
		Traffic: TrafficConfig{
			TopicOverheadBytes: getEnvInt("TRAFFIC_TOPIC_OVERHEAD", 37),
		},
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			log.Err(err)
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Alerting.Campaign.StepDelay == "" {
		cfg.Alerting.Campaign.StepDelay = "60s"
	}
	if cfg.Alerting.Campaign.GuardWindow == "" {
		cfg.Alerting.Campaign.GuardWindow = "60m"
	}
	if cfg.Alerting.Campaign.PollInterval == "" {
		cfg.Alerting.Campaign.PollInterval = "1s"
	}
	if cfg.Alerting.Campaign.Batch == 0 {
		cfg.Alerting.Campaign.Batch = 100
	}
	if cfg.Traffic.TopicOverheadBytes == 0 {
		cfg.Traffic.TopicOverheadBytes = 37
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
