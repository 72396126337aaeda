package service

import (
	"context"
	"fmt"
	"log/slog"

	"indoor-tracker/internal/clock"
	"indoor-tracker/internal/config"
	"indoor-tracker/internal/location"
	"indoor-tracker/internal/metrics"
	"indoor-tracker/internal/motion"
	"indoor-tracker/internal/notecard"
	redisClient "indoor-tracker/internal/redis"
	"indoor-tracker/internal/sensor"
	"indoor-tracker/internal/telemetry"
	"indoor-tracker/internal/weather"
	"indoor-tracker/internal/wifi"
)

// Open connects to the card, sensor and optional host services described by cfg and
// returns a Service ready to Run. Close releases everything that was opened.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	debugf := func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}

	s := &Service{}
	fail := func(err error) (*Service, error) {
		s.Close()
		return nil, err
	}

	serialCard, err := notecard.OpenSerial(cfg.CardPort, cfg.CardBaud, cfg.Debug, debugf)
	if err != nil {
		return fail(fmt.Errorf("failed to open card: %w", err))
	}
	s.closers = append(s.closers, serialCard)
	card := metrics.InstrumentCard(serialCard, m)

	bme, err := sensor.OpenBMX80(cfg.I2CBus, cfg.I2CAddress)
	if err != nil {
		return fail(fmt.Errorf("failed to open sensor: %w", err))
	}
	s.closers = append(s.closers, bme)

	var source location.Source
	switch cfg.LocationSource {
	case config.LocationSourceGpsd:
		gpsdSource := location.NewGPSDSource(cfg.GpsdServer, logger)
		s.closers = append(s.closers, closerFunc(func() error {
			gpsdSource.Close()
			return nil
		}))
		source = gpsdSource
	default:
		source = location.NewCardSource(card)
	}

	var counter motion.Counter
	switch cfg.MotionSource {
	case config.MotionSourceGPIO:
		gpio := motion.NewGPIOCounter(cfg.GPIOChip, cfg.GPIOLine, debugf)
		s.closers = append(s.closers, gpio)
		counter = gpio
	default:
		counter = motion.NewCardCounter(card)
	}

	clk := clock.Real{}

	deps := Deps{
		Card:     card,
		Motion:   counter,
		Resolver: location.NewResolver(source, clk, logger, cfg.GPSTimeout, cfg.GPSPollInterval),
		Sampler:  sensor.NewSampler(bme, clk, logger, cfg.Samples, cfg.SampleDelay),
		Metrics:  m,
		Clock:    clk,
		Logger:   logger,
	}

	scanner, err := wifi.NewNMScanner(cfg.WifiInterface, cfg.Debug, debugf)
	if err != nil {
		logger.Warn("Wi-Fi triangulation disabled", "error", err)
	} else {
		s.closers = append(s.closers, scanner)
		deps.Fallback = wifi.NewTriangulator(card, scanner, logger)
	}

	if cfg.SeaLevelLookup {
		ws := weather.New(card, clk, logger, cfg.WeatherRoute, cfg.WeatherAPIKey, cfg.ConnectTimeout)
		ws.DefaultLatitude = cfg.DefaultLatitude
		ws.DefaultLongitude = cfg.DefaultLongitude
		deps.SeaLevel = ws
	}

	var mirror telemetry.Mirror
	if cfg.RedisURL != "" {
		rc, err := redisClient.New(cfg.RedisURL, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to create Redis client: %w", err))
		}
		s.closers = append(s.closers, rc)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("Redis not reachable, mirroring will retry each cycle", "error", err)
		}
		mirror = rc
		deps.Locations = rc
	}
	deps.Publisher = telemetry.NewPublisher(card, logger, mirror)

	svc := New(cfg, deps)
	svc.closers = s.closers
	return svc, nil
}

// OpenScanner opens only what the scan command needs
func OpenScanner(cfg *config.Config, logger *slog.Logger) (*wifi.NMScanner, error) {
	return wifi.NewNMScanner(cfg.WifiInterface, cfg.Debug, func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	})
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
