package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"indoor-tracker/internal/clock"
	"indoor-tracker/internal/config"
	"indoor-tracker/internal/health"
	"indoor-tracker/internal/location"
	"indoor-tracker/internal/metrics"
	"indoor-tracker/internal/motion"
	"indoor-tracker/internal/notecard"
	"indoor-tracker/internal/sensor"
	"indoor-tracker/internal/telemetry"
)

// Triangulator is the fallback used when GPS does not resolve
type Triangulator interface {
	Run(ctx context.Context) (bool, error)
}

// SeaLevelSource provides the altitude calibration before each sampling pass
type SeaLevelSource interface {
	SeaLevelPressure(ctx context.Context, fix location.Fix) float64
}

// LocationMirror receives the outcome of each location attempt
type LocationMirror interface {
	PublishLocation(ctx context.Context, source string, fix location.Fix) error
}

// starter is implemented by motion counters that need enabling before first use
type starter interface {
	Start(ctx context.Context) error
}

// Deps are the collaborators of the tracking loop
type Deps struct {
	Card      notecard.Card
	Motion    motion.Counter
	Resolver  *location.Resolver
	Fallback  Triangulator
	Sampler   *sensor.Sampler
	Publisher *telemetry.Publisher
	// SeaLevel is nil when the lookup is disabled; the standard atmosphere is used
	SeaLevel  SeaLevelSource
	Locations LocationMirror
	Metrics   *metrics.Metrics
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Service struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock
	Health *health.Health

	Card      notecard.Card
	Motion    motion.Counter
	Resolver  *location.Resolver
	Fallback  Triangulator
	Sampler   *sensor.Sampler
	Publisher *telemetry.Publisher
	SeaLevel  SeaLevelSource
	Locations LocationMirror
	Metrics   *metrics.Metrics

	closers []io.Closer
}

// CycleResult summarises one poll of the motion counter
type CycleResult struct {
	Motion   int
	Location string // metrics.LocationGPS, LocationWiFi or LocationNone; empty when idle
	Fix      location.Fix
	Record   *telemetry.Record
}

func New(cfg *config.Config, deps Deps) *Service {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	return &Service{
		Config:    cfg,
		Logger:    deps.Logger,
		Clock:     clk,
		Health:    health.New(cfg.MaxCycleFailures),
		Card:      deps.Card,
		Motion:    deps.Motion,
		Resolver:  deps.Resolver,
		Fallback:  deps.Fallback,
		Sampler:   deps.Sampler,
		Publisher: deps.Publisher,
		SeaLevel:  deps.SeaLevel,
		Locations: deps.Locations,
		Metrics:   deps.Metrics,
	}
}

// Setup associates the card with its project and puts every subsystem in its low-power mode
func (s *Service) Setup(ctx context.Context) error {
	if err := notecard.HubSet(ctx, s.Card, s.Config.ProductUID, s.Config.SerialNumber, notecard.ModePeriodic); err != nil {
		return err
	}

	// The card's own GNSS is parked in periodic mode whichever source resolves fixes
	if err := notecard.SetLocationMode(ctx, s.Card, notecard.ModePeriodic); err != nil {
		return fmt.Errorf("failed to set periodic location mode: %w", err)
	}
	if _, onCard := s.Resolver.Source.(*location.CardSource); !onCard {
		if err := s.Resolver.Source.SetMode(ctx, notecard.ModePeriodic); err != nil {
			return fmt.Errorf("failed to set periodic location mode: %w", err)
		}
	}

	if m, ok := s.Motion.(starter); ok {
		if err := m.Start(ctx); err != nil {
			return fmt.Errorf("failed to start motion tracking: %w", err)
		}
	}

	s.Logger.Info("Tracker configured",
		"product", s.Config.ProductUID,
		"serial_number", s.Config.SerialNumber)
	return nil
}

// Run sets up the card, then polls for motion every PollInterval until ctx is cancelled
// or too many consecutive cycles fail
func (s *Service) Run(ctx context.Context) error {
	if err := s.Setup(ctx); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	s.Logger.Info("Starting motion polling", "interval", s.Config.PollInterval)

	for {
		start := s.Clock.Now()
		res, err := s.Cycle(ctx)
		if ctx.Err() != nil {
			s.Logger.Info("Tracker stopping")
			return nil
		}

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.Motion == 0:
			outcome = "idle"
		}
		s.Metrics.ObserveCycle(outcome, s.Clock.Now().Sub(start))

		if err != nil {
			state := s.Health.MarkFailure(s.Clock.Now(), err)
			s.Metrics.SetFailures(s.Health.Failures)
			s.Logger.Error("Cycle failed",
				"error", err,
				"consecutive_failures", s.Health.Failures,
				"state", state)

			if s.Health.IsTerminal() {
				s.Logger.Error("Tracker unhealthy", "health", s.Health.String())
				return fmt.Errorf("giving up after %d consecutive failed cycles: %w", s.Health.Failures, err)
			}
		} else {
			s.Health.MarkSuccess(s.Clock.Now())
			s.Metrics.SetFailures(0)
		}

		if err := s.Clock.Sleep(ctx, s.Config.PollInterval); err != nil {
			s.Logger.Info("Tracker stopping")
			return nil
		}
	}
}

// Cycle polls the motion counter and, when movement was seen, runs the pipeline
func (s *Service) Cycle(ctx context.Context) (CycleResult, error) {
	return s.cycle(ctx, false)
}

// ForceCycle runs the pipeline even when no movement was seen
func (s *Service) ForceCycle(ctx context.Context) (CycleResult, error) {
	return s.cycle(ctx, true)
}

func (s *Service) cycle(ctx context.Context, force bool) (CycleResult, error) {
	var res CycleResult

	count, err := s.Motion.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read motion: %w", err)
	}
	res.Motion = count
	s.Metrics.AddMotion(count)

	if count == 0 && !force {
		s.Logger.Debug("No motion detected")
		return res, nil
	}
	s.Logger.Info("Motion detected", "count", count)

	var errs []error

	res.Location, res.Fix, err = s.locate(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		return res, errors.Join(append(errs, ctx.Err())...)
	}

	rec, err := s.sampleAndPublish(ctx, res.Location, res.Fix)
	if rec != nil {
		res.Record = rec
	}
	if err != nil {
		errs = append(errs, err)
	}

	return res, errors.Join(errs...)
}

// locate tries GPS first and falls back to Wi-Fi triangulation. Either step failing is
// reported but does not stop the reading from being taken.
func (s *Service) locate(ctx context.Context) (string, location.Fix, error) {
	var errs []error
	source := metrics.LocationNone

	res, err := s.Resolver.Resolve(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("location resolve failed: %w", err))
	}

	var fix location.Fix
	if res.Resolved {
		source = metrics.LocationGPS
		fix = res.Fix
	} else if s.Fallback != nil && ctx.Err() == nil {
		s.Logger.Info("GPS unavailable, trying Wi-Fi triangulation", "state", res.State, "elapsed", res.Elapsed)
		submitted, err := s.Fallback.Run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("wifi triangulation failed: %w", err))
		}
		if submitted {
			source = metrics.LocationWiFi
		}
	}

	s.Metrics.IncLocation(source)
	if s.Locations != nil {
		if err := s.Locations.PublishLocation(ctx, source, fix); err != nil {
			s.Logger.Warn("Failed to mirror location", "error", err)
		}
	}

	return source, fix, errors.Join(errs...)
}

func (s *Service) sampleAndPublish(ctx context.Context, source string, fix location.Fix) (*telemetry.Record, error) {
	seaLevel := sensor.StandardSeaLevelPressure
	if s.SeaLevel != nil {
		seaLevel = s.SeaLevel.SeaLevelPressure(ctx, fix)
	}

	if err := s.Sampler.Calibrate(ctx, seaLevel); err != nil {
		return nil, err
	}

	_, med, err := s.Sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}

	tag := source
	if tag == metrics.LocationNone {
		tag = ""
	}

	rec, err := s.Publisher.Publish(ctx, telemetry.FromMedians(med, seaLevel, tag))
	s.Metrics.IncPublish(err)
	if err != nil {
		return nil, err
	}

	quantities := map[string]float64{
		"temperature": rec.Temperature,
		"humidity":    rec.Humidity,
		"pressure":    rec.Pressure,
		"altitude":    rec.Altitude,
		"voltage":     rec.Voltage,
	}
	if rec.Gas != nil {
		quantities["gas"] = *rec.Gas
	}
	s.Metrics.SetReading(quantities, seaLevel)

	return &rec, nil
}

// Close releases hardware opened by Open
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
