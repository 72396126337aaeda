package location

import (
	"context"
	"log/slog"
	"time"

	"indoor-tracker/internal/clock"
	"indoor-tracker/internal/notecard"
)

const (
	DefaultTimeout      = 100 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// State of a single resolution attempt
type State string

const (
	StateIdle                State = "idle"
	StateContinuousRequested State = "continuous-requested"
	StatePolling             State = "polling"
	StateResolved            State = "resolved"
	StateTimedOut            State = "timed-out"
)

// Result of one Resolve call. Fix is only meaningful when Resolved is set.
type Result struct {
	Resolved bool
	Fix      Fix
	State    State
	Elapsed  time.Duration
	// Stopped is set when the source's own stop signal ended polling
	Stopped bool
}

// Resolver forces the location source into continuous mode just long enough to obtain a
// fix newer than the one held before the attempt, then puts it back into periodic mode.
type Resolver struct {
	Source       Source
	Clock        clock.Clock
	Logger       *slog.Logger
	Timeout      time.Duration
	PollInterval time.Duration

	state State
}

func NewResolver(source Source, clk clock.Clock, logger *slog.Logger, timeout, pollInterval time.Duration) *Resolver {
	if clk == nil {
		clk = clock.Real{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Resolver{
		Source:       source,
		Clock:        clk,
		Logger:       logger,
		Timeout:      timeout,
		PollInterval: pollInterval,
		state:        StateIdle,
	}
}

// State returns the state reached by the most recent attempt
func (r *Resolver) State() State {
	return r.state
}

// Resolve attempts to obtain a new fix. A timeout is an ordinary unsuccessful Result;
// errors are only returned for transport failures or cancellation. Periodic mode is
// restored exactly once on every path out of this function.
func (r *Resolver) Resolve(ctx context.Context) (res Result, err error) {
	r.state = StateIdle
	start := r.Clock.Now()
	res.State = StateIdle

	defer func() {
		res.Elapsed = r.Clock.Now().Sub(start)
		r.restore(ctx)
	}()

	if err := r.Source.SetMode(ctx, notecard.ModeContinuous); err != nil {
		return res, err
	}
	r.state = StateContinuousRequested
	res.State = r.state

	previous, err := r.Source.Fix(ctx)
	if err != nil {
		return res, err
	}
	baseline := previous.Time

	r.Logger.Debug("Waiting for new fix", "baseline", baseline, "timeout", r.Timeout)

	r.state = StatePolling
	res.State = r.state
	pollStart := r.Clock.Now()

	for {
		elapsed := r.Clock.Now().Sub(pollStart)
		if elapsed > r.Timeout {
			r.Logger.Info("GPS fix timed out", "elapsed", elapsed)
			if st, ok := r.Source.(statuser); ok {
				r.Logger.Debug("Location source status", "status", st.Status())
			}
			r.state = StateTimedOut
			res.State = r.state
			return res, nil
		}

		fix, err := r.Source.Fix(ctx)
		if err != nil {
			return res, err
		}

		if fix.Time > baseline {
			r.Logger.Info("GPS fix resolved",
				"latitude", fix.Latitude,
				"longitude", fix.Longitude,
				"time", fix.Time,
				"elapsed", elapsed)
			r.state = StateResolved
			res.State = r.state
			res.Resolved = true
			res.Fix = fix
			return res, nil
		}

		if fix.Stopped {
			r.Logger.Info("GPS search stopped by location source", "elapsed", elapsed)
			r.state = StateTimedOut
			res.State = r.state
			res.Stopped = true
			return res, nil
		}

		r.Logger.Debug("No new fix yet", "elapsed", elapsed)

		if err := r.Clock.Sleep(ctx, r.PollInterval); err != nil {
			return res, err
		}
	}
}

// statuser is implemented by sources that can describe their receiver
type statuser interface {
	Status() map[string]interface{}
}

func (r *Resolver) restore(ctx context.Context) {
	// Restore even when the attempt was cancelled; continuous mode drains the battery
	restoreCtx := context.WithoutCancel(ctx)
	if err := r.Source.SetMode(restoreCtx, notecard.ModePeriodic); err != nil {
		r.Logger.Error("Failed to restore periodic location mode", "error", err)
	}
}
