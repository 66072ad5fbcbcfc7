package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

type feedFetcher interface {
	Fetch(ctx context.Context) ([]models.SensorRecord, error)
}

// Manager polls the live sensor feed and writes each record to the store,
// where SensorSource reads it during evaluation cycles.
type Manager struct {
	cfg   *config.Config
	repo  repository.SensorRepository
	feed  feedFetcher
	clock clockwork.Clock
	pool  *worker.WorkerPool[models.SensorRecord]
	wg    sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.SensorRepository, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Manager{
		cfg:   cfg,
		repo:  repo,
		clock: clock,
	}
	if cfg.Sources.SensorFeedURL != "" {
		m.feed = NewSensorFeed(cfg.Sources.SensorFeedURL, 15*time.Second)
	}
	return m
}

func (m *Manager) Start(ctx context.Context) {
	processor := func(ctx context.Context, rec models.SensorRecord) error {
		if err := m.repo.SaveSensor(ctx, rec); err != nil {
			slog.Error("error saving sensor", "id", rec.ID, "error", err)
			return err
		}
		slog.Debug("saved sensor", "id", rec.ID, "status", rec.Status)
		return nil
	}

	m.pool = worker.NewWorkerPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, processor)
	m.pool.Start(ctx)

	if m.feed != nil {
		m.wg.Add(1)
		go m.runPoller(ctx, m.cfg.Sources.SensorPollInterval)
	}
}

func (m *Manager) runPoller(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting sensor poller", "interval", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sensor poller shutting down")
			return
		case <-ticker.Chan():
			m.poll(ctx)
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	slog.Debug("polling sensor feed")

	records, err := m.feed.Fetch(ctx)
	if err != nil {
		slog.Error("sensor poll failed", "error", err)
		return
	}

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return
		default:
			m.pool.Submit(rec)
		}
	}

	slog.Debug("sensor poll complete", "count", len(records))
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("sensor ingestion stopped")
}
