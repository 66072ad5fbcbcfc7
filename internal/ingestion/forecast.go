package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-flood-alerts/internal/cache"
	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Area is a fixed flood-prone zone whose forecast is evaluated every cycle.
type Area struct {
	ID     string
	Name   string
	Coords models.Coordinates
}

// DefaultAreas are the flood-prone districts of Da Nang.
var DefaultAreas = []Area{
	{ID: "hai-chau", Name: "Hai Chau", Coords: models.Coordinates{Latitude: 16.0471, Longitude: 108.2199}},
	{ID: "thanh-khe", Name: "Thanh Khe", Coords: models.Coordinates{Latitude: 16.0642, Longitude: 108.1870}},
	{ID: "son-tra", Name: "Son Tra", Coords: models.Coordinates{Latitude: 16.0861, Longitude: 108.2422}},
	{ID: "ngu-hanh-son", Name: "Ngu Hanh Son", Coords: models.Coordinates{Latitude: 16.0000, Longitude: 108.2500}},
	{ID: "lien-chieu", Name: "Lien Chieu", Coords: models.Coordinates{Latitude: 16.0718, Longitude: 108.1500}},
	{ID: "cam-le", Name: "Cam Le", Coords: models.Coordinates{Latitude: 16.0153, Longitude: 108.2080}},
	{ID: "hoa-vang", Name: "Hoa Vang", Coords: models.Coordinates{Latitude: 16.0333, Longitude: 108.0833}},
}

type ForecastReader interface {
	ReadForecast(ctx context.Context, c models.Coordinates) ([]models.ForecastSample, error)
}

// Rainfall holds cumulative precipitation over the next hours, in mm.
type Rainfall struct {
	Next3h  float64
	Next6h  float64
	Next12h float64
}

// RiskFormula scores rainfall as a 0..100 flood risk.
type RiskFormula func(r Rainfall) float64

// DefaultRiskFormula takes the worst of the three windows against the rainfall
// that saturates drainage in each.
func DefaultRiskFormula(r Rainfall) float64 {
	score := max(r.Next3h/50, r.Next6h/80, r.Next12h/120) * 100
	return models.ClampMagnitude(score)
}

// CumulativeRainfall sums the samples at or after now.
func CumulativeRainfall(samples []models.ForecastSample, now time.Time) Rainfall {
	from := now.Truncate(time.Hour)

	var r Rainfall
	hours := 0
	for _, s := range samples {
		if s.Time.Before(from) {
			continue
		}
		if hours >= 12 {
			break
		}
		if hours < 3 {
			r.Next3h += s.RainfallMm
		}
		if hours < 6 {
			r.Next6h += s.RainfallMm
		}
		r.Next12h += s.RainfallMm
		hours++
	}
	return r
}

type ForecastSource struct {
	reader      ForecastReader
	areas       []Area
	formula     RiskFormula
	cache       cache.ForecastCache
	concurrency int
	clock       clockwork.Clock
}

type ForecastOption func(*ForecastSource)

func WithAreas(areas []Area) ForecastOption {
	return func(f *ForecastSource) { f.areas = areas }
}

func WithRiskFormula(formula RiskFormula) ForecastOption {
	return func(f *ForecastSource) { f.formula = formula }
}

func WithCache(c cache.ForecastCache) ForecastOption {
	return func(f *ForecastSource) { f.cache = c }
}

func WithConcurrency(n int) ForecastOption {
	return func(f *ForecastSource) { f.concurrency = n }
}

func NewForecastSource(reader ForecastReader, clock clockwork.Clock, opts ...ForecastOption) *ForecastSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	f := &ForecastSource{
		reader:      reader,
		areas:       DefaultAreas,
		formula:     DefaultRiskFormula,
		concurrency: 4,
		clock:       clock,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *ForecastSource) Name() models.HazardSource {
	return models.HazardSourceForecast
}

// Observe fetches every area concurrently. A failed area is logged and
// skipped; the source fails only when no area could be read.
func (f *ForecastSource) Observe(ctx context.Context, _ Query) ([]models.HazardObservation, error) {
	if len(f.areas) == 0 {
		return nil, nil
	}

	now := f.clock.Now()
	results := make([]*models.HazardObservation, len(f.areas))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, area := range f.areas {
		g.Go(func() error {
			samples, err := f.samples(gctx, area)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", area.ID, err))
				mu.Unlock()
				slog.Warn("forecast fetch failed", "area", area.ID, "error", err)
				return nil
			}
			o := f.observation(area, samples, now)
			results[i] = &o
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(f.areas) {
		return nil, fmt.Errorf("all %d forecast areas failed: %w", len(f.areas), errors.Join(errs...))
	}

	observations := make([]models.HazardObservation, 0, len(results))
	for _, o := range results {
		if o != nil {
			observations = append(observations, *o)
		}
	}
	return observations, nil
}

func (f *ForecastSource) samples(ctx context.Context, area Area) ([]models.ForecastSample, error) {
	if f.cache != nil {
		samples, ok, err := f.cache.Get(ctx, area.Coords)
		if err != nil {
			slog.Warn("forecast cache read failed", "area", area.ID, "error", err)
		} else if ok {
			return samples, nil
		}
	}

	samples, err := f.reader.ReadForecast(ctx, area.Coords)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, area.Coords, samples); err != nil {
			slog.Warn("forecast cache write failed", "area", area.ID, "error", err)
		}
	}
	return samples, nil
}

func (f *ForecastSource) observation(area Area, samples []models.ForecastSample, now time.Time) models.HazardObservation {
	r := CumulativeRainfall(samples, now)
	magnitude := models.ClampMagnitude(f.formula(r))

	return models.HazardObservation{
		SourceID:         area.ID,
		Source:           models.HazardSourceForecast,
		Name:             area.Name,
		Coords:           area.Coords,
		MagnitudePercent: magnitude,
		Severity:         models.SeverityFromMagnitude(magnitude),
		ObservedAt:       now,
		Rainfall3h:       &r.Next3h,
		Rainfall6h:       &r.Next6h,
		Rainfall12h:      &r.Next12h,
	}
}
