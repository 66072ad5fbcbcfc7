// Package dispatch delivers alert content over every configured channel
// concurrently and reports a per-channel outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/content"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// NewDispatcher registers channels in order. A zero timeout leaves each
// channel bounded only by ctx.
func NewDispatcher(clock clockwork.Clock, timeout time.Duration, metrics *observability.Metrics, channels ...Channel) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		clock:    clock,
		metrics:  metrics,
	}
}

func (d *Dispatcher) Channels() []models.Channel {
	names := make([]models.Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch runs every channel in its own goroutine and waits for all of them.
// One channel's failure or latency never affects another's outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, c content.Content, loc models.MonitoredLocation, r Recipient) models.DispatchResult {
	msg := Message{
		Subject:  c.Subject,
		HTML:     c.Body,
		Text:     PlainText(c.Body),
		Severity: loc.Status,
		Location: loc,
	}

	result := make(models.DispatchResult, len(d.channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			outcome := d.deliver(ctx, ch, msg, r)

			mu.Lock()
			result[ch.Name()] = outcome
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	return result
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message, r Recipient) (outcome models.ChannelOutcome) {
	name := ch.Name()
	logger := slog.With("channel", name, "user", r.UserID, "location", msg.Location.ID)

	if !r.Enabled(name) {
		d.record(name, "skipped", 0)
		return models.ChannelOutcome{Skipped: true, SkippedReason: "disabled by user"}
	}

	start := d.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: %s: panic: %v", ErrChannelFailed, name, p)
			logger.Error("channel panicked", "error", err)
			outcome = models.ChannelOutcome{
				Attempted:    true,
				ErrorMessage: err.Error(),
				ElapsedMs:    d.clock.Since(start).Milliseconds(),
			}
			d.record(name, "failed", d.clock.Since(start))
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	id, err := send(ctx, ch, msg, r)
	elapsed := d.clock.Since(start)

	var skip *SkipError
	switch {
	case errors.As(err, &skip):
		logger.Info("channel skipped", "reason", skip.Reason)
		d.record(name, "skipped", 0)
		return models.ChannelOutcome{Skipped: true, SkippedReason: skip.Reason}
	case err != nil:
		err = fmt.Errorf("%w: %s: %w", ErrChannelFailed, name, err)
		logger.Error("channel failed", "error", err, "elapsed", elapsed)
		d.record(name, "failed", elapsed)
		return models.ChannelOutcome{Attempted: true, ErrorMessage: err.Error(), ElapsedMs: elapsed.Milliseconds()}
	}

	logger.Info("alert delivered", "message_id", id, "elapsed", elapsed)
	d.record(name, "success", elapsed)
	return models.ChannelOutcome{Attempted: true, Success: true, MessageID: id, ElapsedMs: elapsed.Milliseconds()}
}

// send returns when the channel does or when ctx ends. A channel that ignores
// ctx finishes in the background and its late result is discarded.
func send(ctx context.Context, ch Channel, msg Message, r Recipient) (string, error) {
	type sent struct {
		id    string
		err   error
		panic any
	}
	done := make(chan sent, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- sent{panic: p}
			}
		}()
		id, err := ch.Send(ctx, msg, r)
		done <- sent{id: id, err: err}
	}()

	select {
	case s := <-done:
		if s.panic != nil {
			panic(s.panic)
		}
		return s.id, s.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Dispatcher) record(ch models.Channel, outcome string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.ChannelOutcomes.WithLabelValues(string(ch), outcome).Inc()
	if outcome != "skipped" {
		d.metrics.ChannelDuration.WithLabelValues(string(ch)).Observe(elapsed.Seconds())
	}
}
