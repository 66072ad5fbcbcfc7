package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DB.Driver)
	}
	if cfg.Content.Retries != 3 || cfg.Content.RetryBase != 2*time.Second {
		t.Errorf("unexpected content retry defaults: %d, %v", cfg.Content.Retries, cfg.Content.RetryBase)
	}
	if cfg.EmailEnabled() || cfg.ChatEnabled() || cfg.SMSEnabled() {
		t.Error("channels must be disabled without credentials")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no kafka brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/floods")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("EMAIL_FROM", "alerts@example.com")
	t.Setenv("FORECAST_CACHE_TTL", "5m")
	t.Setenv("LOCATION_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.DB.Driver != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.DB.Driver)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if !cfg.EmailEnabled() {
		t.Error("expected email enabled")
	}
	if cfg.Cache.ForecastTTL != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %v", cfg.Cache.ForecastTTL)
	}
	if cfg.Worker.LocationsPerCycle != 8 {
		t.Errorf("expected 8 location workers, got %d", cfg.Worker.LocationsPerCycle)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"SERVER_PORT": "70000"}},
		{"bad level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"bad driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"no sources", map[string]string{"SENSORS_ENABLED": "false", "FORECAST_ENABLED": "false"}},
		{"fast sensor poll", map[string]string{"SENSOR_FEED_URL": "http://feed", "SENSOR_POLL_INTERVAL": "10s"}},
		{"twilio without from", map[string]string{"TWILIO_SID": "AC1", "TWILIO_TOKEN": "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
