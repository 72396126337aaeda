package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"indoor-tracker/internal/clock"
	"indoor-tracker/internal/location"
	"indoor-tracker/internal/notecard"
	"indoor-tracker/internal/sensor"
)

const (
	DefaultRoute          = "weatherInfo"
	DefaultConnectTimeout = 120 * time.Second
	DefaultRetryInterval  = time.Second

	DefaultLatitude  = 43.05769554337394
	DefaultLongitude = -89.5070545945101
)

var ErrNotConnected = errors.New("card did not connect")

// Service looks up the current sea-level pressure through the card's web proxy. The card
// is held in continuous connectivity only for the duration of one lookup.
type Service struct {
	Card   notecard.Card
	Clock  clock.Clock
	Logger *slog.Logger

	Route  string
	APIKey string
	// ConnectTimeout bounds the wait for a cloud session
	ConnectTimeout time.Duration
	RetryInterval  time.Duration

	// Used when no valid fix is available
	DefaultLatitude  float64
	DefaultLongitude float64
}

func New(card notecard.Card, clk clock.Clock, logger *slog.Logger, route, apiKey string, connectTimeout time.Duration) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if route == "" {
		route = DefaultRoute
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	return &Service{
		Card:             card,
		Clock:            clk,
		Logger:           logger,
		Route:            route,
		APIKey:           apiKey,
		ConnectTimeout:   connectTimeout,
		RetryInterval:    DefaultRetryInterval,
		DefaultLatitude:  DefaultLatitude,
		DefaultLongitude: DefaultLongitude,
	}
}

// SeaLevelPressure returns the current sea-level pressure in hPa near fix, or the
// standard atmosphere when the lookup fails or yields nothing usable
func (s *Service) SeaLevelPressure(ctx context.Context, fix location.Fix) float64 {
	pressure, err := s.Lookup(ctx, fix)
	if err != nil {
		s.Logger.Warn("Sea-level pressure lookup failed", "error", err)
	}

	if math.IsNaN(pressure) || math.IsInf(pressure, 0) || pressure <= 0 {
		s.Logger.Info("Using standard sea-level pressure", "hpa", sensor.StandardSeaLevelPressure)
		return sensor.StandardSeaLevelPressure
	}

	s.Logger.Info("Sea-level pressure updated", "hpa", pressure)
	return pressure
}

// Lookup performs the connectivity handshake and weather request. A missing or malformed
// pressure field yields 0 without an error. Periodic hub mode is restored on every path.
func (s *Service) Lookup(ctx context.Context, fix location.Fix) (pressure float64, err error) {
	defer s.restore(ctx)

	if err := s.connect(ctx); err != nil {
		return 0, err
	}

	lat, lon := s.DefaultLatitude, s.DefaultLongitude
	if fix.Valid {
		lat, lon = fix.Latitude, fix.Longitude
	}

	rsp, err := notecard.WebGet(ctx, s.Card, s.Route, s.query(lat, lon))
	if err != nil {
		return 0, fmt.Errorf("weather request failed: %w", err)
	}

	pressure, _ = rsp.Object("body").Object("main").Float("pressure")
	return pressure, nil
}

func (s *Service) query(lat, lon float64) string {
	return "/data/2.5/weather?lat=" + strconv.FormatFloat(lat, 'f', -1, 64) +
		"&lon=" + strconv.FormatFloat(lon, 'f', -1, 64) +
		"&appid=" + s.APIKey
}

// connect switches the card to continuous mode, requests a sync and waits for a session
func (s *Service) connect(ctx context.Context) error {
	if err := notecard.SetHubMode(ctx, s.Card, notecard.ModeContinuous); err != nil {
		return err
	}
	if err := notecard.Sync(ctx, s.Card); err != nil {
		return err
	}

	start := s.Clock.Now()
	for {
		connected, err := notecard.Connected(ctx, s.Card)
		if err != nil {
			return err
		}
		if connected {
			s.Logger.Debug("Card connected", "elapsed", s.Clock.Now().Sub(start))
			return nil
		}

		elapsed := s.Clock.Now().Sub(start)
		if elapsed >= s.ConnectTimeout {
			return fmt.Errorf("%w within %v", ErrNotConnected, s.ConnectTimeout)
		}

		s.Logger.Debug("Waiting for card to connect", "elapsed", elapsed)
		if err := s.Clock.Sleep(ctx, s.RetryInterval); err != nil {
			return err
		}
	}
}

func (s *Service) restore(ctx context.Context) {
	if err := notecard.SetHubMode(context.WithoutCancel(ctx), s.Card, notecard.ModePeriodic); err != nil {
		s.Logger.Error("Failed to restore periodic hub mode", "error", err)
	}
}
