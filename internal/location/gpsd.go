package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"indoor-tracker/internal/notecard"
)

const DefaultGpsdServer = "localhost:2947"

// GPSDSource reads fixes from a host GNSS receiver through gpsd. Continuous mode holds a
// watch session open; periodic mode closes it and keeps the last fix as the baseline.
type GPSDSource struct {
	Server string
	Logger *slog.Logger

	mu       sync.Mutex
	conn     *gpsd.Session
	lastFix  Fix
	fixMode  string // "none", "2d", "3d"
	State    string // "off", "searching", "fix-established", "error"
	lost     bool
	sessions int
}

func NewGPSDSource(server string, logger *slog.Logger) *GPSDSource {
	if server == "" {
		server = DefaultGpsdServer
	}

	return &GPSDSource{
		Server:  server,
		Logger:  logger,
		fixMode: "none",
		State:   "off",
	}
}

func (s *GPSDSource) SetMode(ctx context.Context, mode string) error {
	switch mode {
	case notecard.ModeContinuous:
		return s.connect()
	case notecard.ModePeriodic:
		s.Close()
		return nil
	default:
		return fmt.Errorf("unknown location mode %q", mode)
	}
}

// Fix returns the most recent 2D/3D fix. Stopped is reported when the gpsd stream ended
// while a session was expected to be open.
func (s *GPSDSource) Fix(ctx context.Context) (Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fix := s.lastFix
	fix.Stopped = s.lost
	return fix, nil
}

func (s *GPSDSource) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	s.Logger.Debug("Connecting to gpsd", "server", s.Server)
	conn, err := gpsd.Dial(s.Server)
	if err != nil {
		s.State = "error"
		return fmt.Errorf("failed to connect to gpsd: %w", err)
	}
	if conn == nil {
		s.State = "error"
		return fmt.Errorf("failed to connect to gpsd")
	}

	s.sessions++
	session := s.sessions

	conn.AddFilter("TPV", func(r interface{}) {
		report, ok := r.(*gpsd.TPVReport)
		if !ok {
			s.Logger.Warn("Could not cast TPV report")
			return
		}
		s.handleTPV(report)
	})

	s.conn = conn
	s.lost = false
	s.State = "searching"

	done := conn.Watch()
	go func() {
		<-done
		s.mu.Lock()
		defer s.mu.Unlock()
		// A closed session from an earlier continuous period is not a loss
		if s.conn != nil && s.sessions == session {
			s.Logger.Warn("gpsd stream ended", "server", s.Server)
			s.lost = true
			s.State = "error"
		}
	}()

	return nil
}

func (s *GPSDSource) handleTPV(report *gpsd.TPVReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 0=unknown, 1=no fix
	if report.Mode < 2 {
		s.fixMode = "none"
		s.State = "searching"
		return
	}

	ts := report.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fix := Fix{
		Latitude:  report.Lat,
		Longitude: report.Lon,
		Time:      ts.Unix(),
		Valid:     true,
	}
	if err := fix.Check(); err != nil {
		s.Logger.Warn("Discarding TPV report", "error", err)
		return
	}

	if report.Mode == 2 {
		s.fixMode = "2d"
	} else {
		s.fixMode = "3d"
	}
	s.State = "fix-established"
	s.lastFix = fix
}

// Close ends the watch session, keeping the last fix
func (s *GPSDSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.lost = false
	s.State = "off"
}

// Status summarises the receiver for logging and the state mirror
func (s *GPSDSource) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"fix":       s.fixMode,
		"active":    s.lastFix.Valid,
		"connected": s.conn != nil,
		"state":     s.State,
	}
}
