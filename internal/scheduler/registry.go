// Package scheduler keeps one periodic evaluation loop per enabled user.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/engine"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

type Runner interface {
	RunCycle(ctx context.Context, userID string, trigger engine.Trigger) (engine.CycleReport, error)
}

type SettingsReader interface {
	ListEnabledUserIDs(ctx context.Context) ([]string, error)
	GetSettings(ctx context.Context, userID string) (models.AlertSettings, error)
}

type Status struct {
	Running       bool     `json:"running"`
	ActiveUserIDs []string `json:"activeUserIds"`
}

type schedule struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Registry owns the per-user loops. At most one loop runs per user.
type Registry struct {
	runner   Runner
	settings SettingsReader
	clock    clockwork.Clock
	metrics  *observability.Metrics

	mu        sync.Mutex
	schedules map[string]*schedule
	wg        sync.WaitGroup
}

func NewRegistry(runner Runner, settings SettingsReader, clock clockwork.Clock, metrics *observability.Metrics) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		runner:    runner,
		settings:  settings,
		clock:     clock,
		metrics:   metrics,
		schedules: make(map[string]*schedule),
	}
}

// Start runs a cycle for the user immediately and then every interval. A
// running schedule with the same interval is left alone; one with a different
// interval is replaced once its in-flight cycle finishes.
func (r *Registry) Start(userID string, interval time.Duration) error {
	if interval < models.MinCheckInterval {
		return fmt.Errorf("check interval %v is below the minimum of %v", interval, models.MinCheckInterval)
	}

	r.mu.Lock()
	old, ok := r.schedules[userID]
	if ok && old.interval == interval {
		r.mu.Unlock()
		return nil
	}
	if ok {
		old.cancel()
		delete(r.schedules, userID)
	}
	r.mu.Unlock()

	if ok {
		<-old.done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[userID]; ok {
		// A concurrent Start won.
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &schedule{interval: interval, cancel: cancel, done: make(chan struct{})}
	r.schedules[userID] = s
	r.setGauge()

	r.wg.Add(1)
	go r.loop(ctx, userID, s)

	slog.Info("schedule started", "user", userID, "interval", interval)
	return nil
}

// Stop cancels the user's schedule. A cycle already running completes its
// dispatch and ledger writes; no further tick fires.
func (r *Registry) Stop(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[userID]
	if !ok {
		return false
	}
	s.cancel()
	delete(r.schedules, userID)
	r.setGauge()

	slog.Info("schedule stopped", "user", userID)
	return true
}

// Restart replaces the user's schedule unconditionally.
func (r *Registry) Restart(userID string, interval time.Duration) error {
	r.mu.Lock()
	s, ok := r.schedules[userID]
	if ok {
		s.cancel()
		delete(r.schedules, userID)
	}
	r.mu.Unlock()

	if ok {
		<-s.done
	}
	return r.Start(userID, interval)
}

// Sync makes the registry match the user's settings.
func (r *Registry) Sync(userID string, s models.AlertSettings) error {
	if !s.Enabled {
		r.Stop(userID)
		return nil
	}
	return r.Start(userID, s.CheckInterval())
}

func (r *Registry) IsRunning(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.schedules[userID]
	return ok
}

func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.schedules))
	for id := range r.schedules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return Status{Running: len(ids) > 0, ActiveUserIDs: ids}
}

// Bootstrap starts a schedule for every user whose settings are enabled.
// Users with unreadable or invalid settings are logged and skipped.
func (r *Registry) Bootstrap(ctx context.Context) (int, error) {
	ids, err := r.settings.ListEnabledUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list enabled users: %w", err)
	}

	started := 0
	for _, id := range ids {
		s, err := r.settings.GetSettings(ctx, id)
		if err != nil {
			slog.Error("failed to load settings", "user", id, "error", err)
			continue
		}
		if err := r.Sync(id, s); err != nil {
			slog.Error("failed to start schedule", "user", id, "error", err)
			continue
		}
		started++
	}

	slog.Info("scheduler bootstrapped", "users", started)
	return started, nil
}

// Shutdown cancels every schedule and waits for in-flight cycles until ctx
// is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for id, s := range r.schedules {
		s.cancel()
		delete(r.schedules, id)
	}
	r.setGauge()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (r *Registry) loop(ctx context.Context, userID string, s *schedule) {
	defer r.wg.Done()
	defer close(s.done)

	r.runOnce(ctx, userID)

	ticker := r.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.runOnce(ctx, userID)
		}
	}
}

func (r *Registry) runOnce(ctx context.Context, userID string) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("cycle panicked", "user", userID, "panic", p)
		}
	}()

	// Cancelling the schedule must not abort sends or ledger writes midway.
	if _, err := r.runner.RunCycle(context.WithoutCancel(ctx), userID, engine.TriggerSchedule); err != nil {
		slog.Warn("cycle failed", "user", userID, "error", err)
	}
}

// setGauge must be called with mu held.
func (r *Registry) setGauge() {
	if r.metrics != nil {
		r.metrics.ActiveSchedules.Set(float64(len(r.schedules)))
	}
}
