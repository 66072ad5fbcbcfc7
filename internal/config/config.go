package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/logging"
)

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Sources   SourcesConfig
	Cache     CacheConfig
	Content   ContentConfig
	Email     EmailConfig
	Chat      ChatConfig
	SMS       SMSConfig
	Kafka     KafkaConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// WorkerConfig sizes the pools used by sensor ingestion and by the per-cycle
// location fan-out.
type WorkerConfig struct {
	Count             int
	BufferSize        int
	LocationsPerCycle int
}

type SchedulerConfig struct {
	Enabled         bool
	DispatchTimeout time.Duration
}

type SourcesConfig struct {
	SensorsEnabled      bool
	SensorFeedURL       string
	SensorPollInterval  time.Duration
	ForecastEnabled     bool
	ForecastURL         string
	ForecastConcurrency int
	ForecastTimeout     time.Duration
	ForecastRetries     int
}

type CacheConfig struct {
	RedisURL    string
	ForecastTTL time.Duration
}

type ContentConfig struct {
	GeminiAPIKey string
	GeminiModel  string
	GeminiURL    string
	Timeout      time.Duration
	Retries      int
	RetryBase    time.Duration
}

type EmailConfig struct {
	Region string
	From   string
}

type ChatConfig struct {
	TelegramToken string
}

type SMSConfig struct {
	TwilioSID   string
	TwilioToken string
	From        string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RateLimit:      getEnvFloat("RATE_LIMIT_RPS", 10),
			RateBurst:      getEnvInt("RATE_LIMIT_BURST", 20),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Worker: WorkerConfig{
			Count:             getEnvInt("WORKER_COUNT", 2),
			BufferSize:        getEnvInt("WORKER_BUFFER_SIZE", 20),
			LocationsPerCycle: getEnvInt("LOCATION_WORKERS", 4),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getEnvBool("SCHEDULER_ENABLED", true),
			DispatchTimeout: getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
		},
		Sources: SourcesConfig{
			SensorsEnabled:      getEnvBool("SENSORS_ENABLED", true),
			SensorFeedURL:       getEnv("SENSOR_FEED_URL", ""),
			SensorPollInterval:  getEnvDuration("SENSOR_POLL_INTERVAL", 2*time.Minute),
			ForecastEnabled:     getEnvBool("FORECAST_ENABLED", true),
			ForecastURL:         getEnv("FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
			ForecastConcurrency: getEnvInt("FORECAST_CONCURRENCY", 4),
			ForecastTimeout:     getEnvDuration("FORECAST_TIMEOUT", 10*time.Second),
			ForecastRetries:     getEnvInt("FORECAST_RETRIES", 3),
		},
		Cache: CacheConfig{
			RedisURL:    getEnv("REDIS_URL", ""),
			ForecastTTL: getEnvDuration("FORECAST_CACHE_TTL", 15*time.Minute),
		},
		Content: ContentConfig{
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiURL:    getEnv("GEMINI_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout:      getEnvDuration("GEMINI_TIMEOUT", 20*time.Second),
			Retries:      getEnvInt("CONTENT_RETRIES", 3),
			RetryBase:    getEnvDuration("CONTENT_RETRY_BASE", 2*time.Second),
		},
		Email: EmailConfig{
			Region: getEnv("AWS_REGION", "ap-southeast-1"),
			From:   getEnv("EMAIL_FROM", ""),
		},
		Chat: ChatConfig{
			TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		SMS: SMSConfig{
			TwilioSID:   getEnv("TWILIO_SID", ""),
			TwilioToken: getEnv("TWILIO_TOKEN", ""),
			From:        getEnv("TWILIO_FROM", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_ALERTS_TOPIC", "flood-alerts"),
		},
		DB: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "./data/flood-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid db driver: %s", c.DB.Driver)
	}

	if c.Worker.Count < 1 || c.Worker.LocationsPerCycle < 1 {
		return fmt.Errorf("worker counts must be at least 1")
	}
	if c.Sources.SensorFeedURL != "" && c.Sources.SensorPollInterval < time.Minute {
		return fmt.Errorf("sensor poll interval must be at least 1 minute")
	}
	if !c.Sources.SensorsEnabled && !c.Sources.ForecastEnabled {
		return fmt.Errorf("at least one of SENSORS_ENABLED or FORECAST_ENABLED must be true")
	}
	if c.Sources.ForecastConcurrency < 1 {
		return fmt.Errorf("forecast concurrency must be at least 1")
	}
	if c.Content.Retries < 0 {
		return fmt.Errorf("content retries must not be negative")
	}
	if c.SMSEnabled() && c.SMS.From == "" {
		return fmt.Errorf("TWILIO_FROM is required when Twilio is configured")
	}

	return nil
}

// EmailEnabled reports whether a sender address was configured for SES.
func (c *Config) EmailEnabled() bool {
	return c.Email.From != ""
}

// ChatEnabled reports whether a Telegram bot token was provided.
func (c *Config) ChatEnabled() bool {
	return c.Chat.TelegramToken != ""
}

// SMSEnabled reports whether Twilio credentials were provided.
func (c *Config) SMSEnabled() bool {
	return c.SMS.TwilioSID != "" && c.SMS.TwilioToken != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
