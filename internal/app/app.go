// Package app assembles the evaluation pipeline from configuration. Both the
// server and the one-shot checker build their engine here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/broadcast"
	"github.com/mr1hm/go-flood-alerts/internal/cache"
	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/content"
	"github.com/mr1hm/go-flood-alerts/internal/dispatch"
	"github.com/mr1hm/go-flood-alerts/internal/engine"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/ledger"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/retry"
)

type App struct {
	DB          *repository.DocumentDB
	Users       *repository.Users
	Broadcaster *broadcast.Broadcaster
	Ledger      *ledger.Ledger
	Engine      *engine.Engine

	closers []func() error
}

// Build opens the store and wires sources, content, channels and the ledger
// according to cfg. Optional integrations without credentials are left out.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, clock clockwork.Clock) (*App, error) {
	if cfg.DB.Driver == repository.DriverSQLite && cfg.DB.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := repository.NewDocumentDB(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{DB: db, Users: repository.NewUsers(db)}
	a.closers = append(a.closers, db.Close)

	var sources []ingestion.Source
	if cfg.Sources.SensorsEnabled {
		sources = append(sources, ingestion.NewSensorSource(a.Users, clock, metrics))
	}
	if cfg.Sources.ForecastEnabled {
		reader := ingestion.NewOpenMeteoClient(cfg.Sources.ForecastURL, cfg.Sources.ForecastRetries, cfg.Sources.ForecastTimeout)
		sources = append(sources, ingestion.NewForecastSource(reader, clock,
			ingestion.WithCache(a.forecastCache(ctx, cfg, clock)),
			ingestion.WithConcurrency(cfg.Sources.ForecastConcurrency),
		))
	}

	var provider content.Provider
	if cfg.Content.GeminiAPIKey != "" {
		provider = content.NewGeminiProvider(cfg.Content.GeminiURL, cfg.Content.GeminiModel, cfg.Content.GeminiAPIKey, cfg.Content.Timeout)
	} else {
		slog.Warn("GEMINI_API_KEY not set, alerts use templated content")
	}
	generator := content.NewGenerator(provider, retry.Policy{
		Retries:   cfg.Content.Retries,
		BaseDelay: cfg.Content.RetryBase,
		Clock:     clock,
	}, metrics)

	dispatcher := dispatch.NewDispatcher(clock, cfg.Scheduler.DispatchTimeout, metrics, a.channels(cfg)...)

	var publisher ledger.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := ledger.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, kp.Close)
		publisher = kp
	}

	a.Broadcaster = broadcast.NewBroadcaster()
	a.Ledger = ledger.New(a.Users, a.Broadcaster, publisher, metrics)
	a.Engine = engine.New(engine.Deps{
		Users:      a.Users,
		Observer:   ingestion.NewObserver(metrics, sources...),
		Generator:  generator,
		Dispatcher: dispatcher,
		Ledger:     a.Ledger,
		Clock:      clock,
		Metrics:    metrics,
		Workers:    cfg.Worker.LocationsPerCycle,
	})

	return a, nil
}

// forecastCache prefers Redis and falls back to process memory when Redis is
// not configured or unreachable.
func (a *App) forecastCache(ctx context.Context, cfg *config.Config, clock clockwork.Clock) cache.ForecastCache {
	if cfg.Cache.RedisURL == "" {
		return cache.NewMemoryCache(cfg.Cache.ForecastTTL, clock)
	}

	rc, err := cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.ForecastTTL)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = rc.Ping(pingCtx)
		cancel()
		if err != nil {
			rc.Close()
		}
	}
	if err != nil {
		slog.Warn("redis unavailable, caching forecasts in memory", "error", err)
		return cache.NewMemoryCache(cfg.Cache.ForecastTTL, clock)
	}

	a.closers = append(a.closers, rc.Close)
	return rc
}

func (a *App) channels(cfg *config.Config) []dispatch.Channel {
	var channels []dispatch.Channel

	if cfg.EmailEnabled() {
		channels = append(channels, dispatch.NewEmailChannel(cfg.Email.Region, cfg.Email.From))
	}
	if cfg.ChatEnabled() {
		ch, err := dispatch.NewChatChannel(cfg.Chat.TelegramToken, a.Users, cfg.Scheduler.DispatchTimeout)
		if err != nil {
			slog.Error("chat channel disabled", "error", err)
		} else {
			channels = append(channels, ch)
		}
	}
	if cfg.SMSEnabled() {
		channels = append(channels, dispatch.NewSMSChannel(cfg.SMS.TwilioSID, cfg.SMS.TwilioToken, cfg.SMS.From))
	}

	if len(channels) == 0 {
		slog.Warn("no delivery channels configured, alerts are recorded only")
	}
	return channels
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	if a.Broadcaster != nil {
		a.Broadcaster.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("close failed", "error", err)
		}
	}
}
