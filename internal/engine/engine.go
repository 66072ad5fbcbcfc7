// Package engine runs one flood evaluation cycle for a user: observe, match,
// generate, dispatch and record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/content"
	"github.com/mr1hm/go-flood-alerts/internal/dispatch"
	"github.com/mr1hm/go-flood-alerts/internal/geo"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

type UserStore interface {
	GetSettings(ctx context.Context, userID string) (models.AlertSettings, error)
	ListLocations(ctx context.Context, userID string) ([]models.MonitoredLocation, error)
}

type Observer interface {
	Observe(ctx context.Context, q ingestion.Query) ([]models.HazardObservation, error)
}

type Generator interface {
	Generate(ctx context.Context, req content.Request) (content.Content, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, c content.Content, loc models.MonitoredLocation, r dispatch.Recipient) models.DispatchResult
}

type Ledger interface {
	Record(ctx context.Context, event *models.AlertEvent) error
	UpdateLocationStatus(ctx context.Context, userID, locationID string, status models.Severity, ts time.Time) error
	RecordLocationAlert(ctx context.Context, userID, locationID string, ts time.Time) error
	RecordLastAlertSent(ctx context.Context, userID string, ts time.Time) error
	RecordChecked(ctx context.Context, userID string, ts time.Time) error
}

type Deps struct {
	Users      UserStore
	Observer   Observer
	Generator  Generator
	Dispatcher Dispatcher
	Ledger     Ledger
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
	// Workers bounds how many locations are evaluated at once.
	Workers int
}

type Engine struct {
	users      UserStore
	observer   Observer
	generator  Generator
	dispatcher Dispatcher
	ledger     Ledger
	clock      clockwork.Clock
	metrics    *observability.Metrics
	workers    int
}

func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Workers < 1 {
		d.Workers = 1
	}
	return &Engine{
		users:      d.Users,
		observer:   d.Observer,
		generator:  d.Generator,
		dispatcher: d.Dispatcher,
		ledger:     d.Ledger,
		clock:      d.Clock,
		metrics:    d.Metrics,
		workers:    d.Workers,
	}
}

// RunCycle evaluates every monitored location of the user once. When no
// hazard source is available it returns ingestion.ErrSourceUnavailable and
// leaves lastCheckedAt untouched so the next tick retries.
func (e *Engine) RunCycle(ctx context.Context, userID string, trigger Trigger) (report CycleReport, err error) {
	start := e.clock.Now()
	report = CycleReport{UserID: userID, Trigger: trigger, StartedAt: start}
	logger := slog.With("user", userID, "trigger", trigger)

	defer func() {
		report.FinishedAt = e.clock.Now()
		e.observeCycle(trigger, err, report.FinishedAt.Sub(start))
	}()

	settings, err := e.users.GetSettings(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("load settings: %w", err)
	}
	locations, err := e.users.ListLocations(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("load locations: %w", err)
	}

	if len(locations) == 0 {
		logger.Debug("no monitored locations")
		e.touchChecked(ctx, userID, start)
		return report, nil
	}

	observations, err := e.observer.Observe(ctx, ingestion.Query{
		Locations:          locations,
		MonitoredSensorIDs: settings.MonitoredSensorIDs,
	})
	if err != nil {
		logger.Warn("skipping cycle, no hazard data", "error", err)
		return report, err
	}
	report.Observations = len(observations)

	recipient := dispatch.RecipientFromSettings(userID, settings)
	results := make([]LocationReport, len(locations))
	indices := make([]int, len(locations))
	for i := range indices {
		indices[i] = i
	}

	worker.Run(ctx, e.workers, indices, func(ctx context.Context, i int) error {
		results[i] = e.evaluate(ctx, userID, settings, recipient, locations[i], observations, start)
		return nil
	})

	for i, r := range results {
		if r.LocationID == "" {
			// The pool stopped before reaching this location.
			results[i] = LocationReport{
				LocationID:   locations[i].ID,
				LocationName: locations[i].DisplayName(),
				Outcome:      OutcomeFailed,
				Error:        fmt.Sprintf("not evaluated: %v", ctx.Err()),
			}
		}
	}
	report.Locations = results

	e.touchChecked(ctx, userID, start)
	if report.Delivered() {
		if err := e.ledger.RecordLastAlertSent(ctx, userID, start); err != nil {
			logger.Error("failed to record last alert time", "error", err)
		}
	}

	logger.Info("cycle complete",
		"locations", len(locations),
		"observations", len(observations),
		"alerts", report.Alerts(),
	)
	return report, nil
}

func (e *Engine) evaluate(
	ctx context.Context,
	userID string,
	settings models.AlertSettings,
	recipient dispatch.Recipient,
	loc models.MonitoredLocation,
	observations []models.HazardObservation,
	now time.Time,
) LocationReport {
	logger := slog.With("user", userID, "location", loc.ID)

	all := geo.Match(loc, observations, models.SeveritySafe)
	status := all.MostSevere()
	loc.Status = status
	if err := e.ledger.UpdateLocationStatus(ctx, userID, loc.ID, status, now); err != nil {
		logger.Error("failed to update location status", "error", err)
	}

	rep := LocationReport{LocationID: loc.ID, LocationName: loc.DisplayName(), Status: status}

	alertable := geo.Filter(all, func(o models.ObservationMatch) bool {
		return o.Severity.AtLeast(settings.RiskLevelThreshold) && o.MagnitudePercent >= settings.WaterLevelThreshold
	})
	rep.Matched = len(alertable.Observations)
	if alertable.Empty() {
		rep.Outcome = OutcomeNoMatch
		return rep
	}

	if cd := settings.Cooldown(); cd > 0 && loc.LastAlertAt != nil && now.Sub(*loc.LastAlertAt) < cd {
		logger.Debug("location in cool-down", "last_alert", loc.LastAlertAt)
		rep.Outcome = OutcomeCooldown
		return rep
	}

	c, err := e.generator.Generate(ctx, content.Request{UserID: userID, Match: alertable})
	if err != nil {
		logger.Error("no alert content", "error", err)
		rep.Outcome = OutcomeFailed
		rep.Error = err.Error()
		return rep
	}

	result := e.dispatcher.Dispatch(ctx, c, loc, recipient)

	event := &models.AlertEvent{
		UserID:       userID,
		LocationID:   loc.ID,
		LocationName: loc.DisplayName(),
		Severity:     alertable.MostSevere(),
		Subject:      c.Subject,
		Body:         c.Body,
		Generated:    c.Generated,
		Observations: alertable.Observations,
		Dispatch:     result,
		CreatedAt:    now,
	}

	// Sends are never undone; persistence errors are reported only.
	if err := e.ledger.Record(ctx, event); err != nil {
		logger.Error("failed to record alert", "error", err)
		rep.Error = err.Error()
	}
	if result.Delivered() {
		if err := e.ledger.RecordLocationAlert(ctx, userID, loc.ID, now); err != nil {
			logger.Error("failed to record location alert time", "error", err)
		}
	}

	rep.Outcome = OutcomeAlerted
	rep.AlertID = event.ID
	rep.Generated = c.Generated
	rep.Dispatch = result
	return rep
}

func (e *Engine) touchChecked(ctx context.Context, userID string, ts time.Time) {
	if err := e.ledger.RecordChecked(ctx, userID, ts); err != nil {
		slog.Error("failed to record check time", "user", userID, "error", err)
	}
}

func (e *Engine) observeCycle(trigger Trigger, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ingestion.ErrSourceUnavailable):
		outcome = "source_unavailable"
	case err != nil:
		outcome = "error"
	}
	e.metrics.CyclesTotal.WithLabelValues(string(trigger), outcome).Inc()
	e.metrics.CycleDuration.Observe(elapsed.Seconds())
}
