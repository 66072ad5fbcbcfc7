// Package ledger records alert events and the per-location and per-user
// timestamps derived from them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/broadcast"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
)

// Store is the slice of the user repository the ledger writes to.
type Store interface {
	AppendAlert(ctx context.Context, event models.AlertEvent) (string, error)
	ListAlerts(ctx context.Context, userID, locationID string, limit int) ([]models.AlertEvent, error)
	SetLocationStatus(ctx context.Context, userID, locationID string, status models.Severity, ts time.Time) error
	SetLocationLastAlert(ctx context.Context, userID, locationID string, ts time.Time) error
	TouchLastAlertSent(ctx context.Context, userID string, ts time.Time) error
	TouchLastChecked(ctx context.Context, userID string, ts time.Time) error
}

// Publisher forwards recorded events outside the process.
type Publisher interface {
	Publish(ctx context.Context, event *models.AlertEvent) error
}

type Ledger struct {
	store       Store
	broadcaster *broadcast.Broadcaster
	publisher   Publisher
	metrics     *observability.Metrics
}

// New returns a ledger. broadcaster and publisher may be nil.
func New(store Store, broadcaster *broadcast.Broadcaster, publisher Publisher, metrics *observability.Metrics) *Ledger {
	return &Ledger{
		store:       store,
		broadcaster: broadcaster,
		publisher:   publisher,
		metrics:     metrics,
	}
}

// Record appends the event to its location's log and sets event.ID. Every
// call adds a new entry; nothing is overwritten or deduplicated.
func (l *Ledger) Record(ctx context.Context, event *models.AlertEvent) error {
	id, err := l.store.AppendAlert(ctx, *event)
	if err != nil {
		l.failed()
		return fmt.Errorf("append alert for %s/%s: %w", event.UserID, event.LocationID, err)
	}
	event.ID = id

	if l.metrics != nil {
		l.metrics.AlertsTotal.WithLabelValues(event.Severity.String()).Inc()
	}
	if l.broadcaster != nil {
		l.broadcaster.Broadcast(event)
	}
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, event); err != nil {
			slog.Warn("alert publish failed", "alert", event.ID, "user", event.UserID, "error", err)
		}
	}
	return nil
}

// UpdateLocationStatus writes the location's current status and the time it
// was evaluated. Repeating a call has no further effect.
//
// The timestamp writes below skip users and locations deleted since the cycle
// started instead of recreating them.
func (l *Ledger) UpdateLocationStatus(ctx context.Context, userID, locationID string, status models.Severity, ts time.Time) error {
	err := l.store.SetLocationStatus(ctx, userID, locationID, status, ts)
	return l.check(err, "set status of %s/%s", userID, locationID)
}

func (l *Ledger) RecordLocationAlert(ctx context.Context, userID, locationID string, ts time.Time) error {
	err := l.store.SetLocationLastAlert(ctx, userID, locationID, ts)
	return l.check(err, "set last alert of %s/%s", userID, locationID)
}

func (l *Ledger) RecordLastAlertSent(ctx context.Context, userID string, ts time.Time) error {
	err := l.store.TouchLastAlertSent(ctx, userID, ts)
	return l.check(err, "touch lastAlertSentAt for %s", userID)
}

func (l *Ledger) RecordChecked(ctx context.Context, userID string, ts time.Time) error {
	err := l.store.TouchLastChecked(ctx, userID, ts)
	return l.check(err, "touch lastCheckedAt for %s", userID)
}

// History returns up to limit events for a location, newest first.
func (l *Ledger) History(ctx context.Context, userID, locationID string, limit int) ([]models.AlertEvent, error) {
	return l.store.ListAlerts(ctx, userID, locationID, limit)
}

func (l *Ledger) check(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		slog.Debug("skipping write for deleted document", "target", fmt.Sprintf(format, args...))
		return nil
	}
	l.failed()
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func (l *Ledger) failed() {
	if l.metrics != nil {
		l.metrics.LedgerErrors.Inc()
	}
}
