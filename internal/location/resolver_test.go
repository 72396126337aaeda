package location

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"indoor-tracker/internal/clock"
	"indoor-tracker/internal/notecard"
	"indoor-tracker/internal/notecard/notecardtest"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves fixes as a function of elapsed fake time
type fakeSource struct {
	clk      *clock.Fake
	baseline Fix
	// fixAt returns the fix visible after elapsed time in continuous mode
	fixAt   func(elapsed time.Duration) Fix
	modes   []string
	queries int
	started time.Time
	fixErr  error
	modeErr error
}

func (f *fakeSource) SetMode(ctx context.Context, mode string) error {
	f.modes = append(f.modes, mode)
	if mode == notecard.ModeContinuous {
		f.started = f.clk.Now()
		return f.modeErr
	}
	return nil
}

func (f *fakeSource) Fix(ctx context.Context) (Fix, error) {
	f.queries++
	if f.fixErr != nil {
		return Fix{}, f.fixErr
	}
	if f.fixAt == nil {
		return f.baseline, nil
	}
	return f.fixAt(f.clk.Now().Sub(f.started)), nil
}

func (f *fakeSource) restores() int {
	n := 0
	for _, m := range f.modes {
		if m == notecard.ModePeriodic {
			n++
		}
	}
	return n
}

func TestResolveNewFix(t *testing.T) {
	clk := clock.NewFake(epoch)
	src := &fakeSource{clk: clk}
	src.fixAt = func(elapsed time.Duration) Fix {
		if elapsed >= 10*time.Second {
			return Fix{Latitude: 43.05, Longitude: -89.5, Time: 150, Valid: true}
		}
		return Fix{Latitude: 1, Longitude: 1, Time: 100, Valid: true}
	}

	r := NewResolver(src, clk, testLogger(), 100*time.Second, 2*time.Second)
	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !res.Resolved {
		t.Fatal("expected fix to resolve")
	}
	if res.Fix.Time != 150 || res.Fix.Latitude != 43.05 {
		t.Errorf("Fix = %+v", res.Fix)
	}
	if res.State != StateResolved || r.State() != StateResolved {
		t.Errorf("State = %s, want %s", res.State, StateResolved)
	}
	if res.Elapsed != 10*time.Second {
		t.Errorf("Elapsed = %v, want 10s", res.Elapsed)
	}
	if got := src.restores(); got != 1 {
		t.Errorf("periodic restored %d times, want 1", got)
	}
	if src.modes[0] != notecard.ModeContinuous {
		t.Errorf("first mode = %s, want continuous", src.modes[0])
	}
}

func TestResolveWallClockTimeout(t *testing.T) {
	clk := clock.NewFake(epoch)
	src := &fakeSource{clk: clk, baseline: Fix{Time: 100, Valid: true}}

	r := NewResolver(src, clk, testLogger(), 100*time.Second, 2*time.Second)
	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res.Resolved {
		t.Error("expected timeout, got resolved fix")
	}
	if res.State != StateTimedOut {
		t.Errorf("State = %s, want %s", res.State, StateTimedOut)
	}
	if res.Stopped {
		t.Error("wall clock timeout reported as source stop")
	}
	if res.Elapsed <= 100*time.Second {
		t.Errorf("Elapsed = %v, want > 100s", res.Elapsed)
	}
	// baseline query + one query per 2s step from 0s through 100s
	if src.queries != 1+51 {
		t.Errorf("queries = %d, want 52", src.queries)
	}
	for _, d := range clk.Slept {
		if d != 2*time.Second {
			t.Fatalf("slept %v, want poll interval 2s", d)
		}
	}
	if got := src.restores(); got != 1 {
		t.Errorf("periodic restored %d times, want 1", got)
	}
}

func TestResolveEqualTimestampIsNotNew(t *testing.T) {
	clk := clock.NewFake(epoch)
	src := &fakeSource{clk: clk}
	src.fixAt = func(time.Duration) Fix {
		return Fix{Time: 100, Valid: true}
	}

	r := NewResolver(src, clk, testLogger(), 10*time.Second, 2*time.Second)
	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Resolved {
		t.Error("fix with timestamp equal to baseline must not count as new")
	}
}

func TestResolveSourceStop(t *testing.T) {
	clk := clock.NewFake(epoch)
	src := &fakeSource{clk: clk}
	src.fixAt = func(elapsed time.Duration) Fix {
		if elapsed >= 6*time.Second {
			return Fix{Stopped: true}
		}
		return Fix{}
	}

	r := NewResolver(src, clk, testLogger(), 100*time.Second, 2*time.Second)
	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res.Resolved || !res.Stopped || res.State != StateTimedOut {
		t.Errorf("Result = %+v, want stopped timeout", res)
	}
	if res.Elapsed != 6*time.Second {
		t.Errorf("Elapsed = %v, want 6s", res.Elapsed)
	}
	if got := src.restores(); got != 1 {
		t.Errorf("periodic restored %d times, want 1", got)
	}
}

func TestResolveRestoresOnErrors(t *testing.T) {
	boom := errors.New("transport down")

	tests := []struct {
		name string
		src  func(clk *clock.Fake) *fakeSource
		ctx  func() context.Context
	}{
		{
			name: "continuous mode request fails",
			src: func(clk *clock.Fake) *fakeSource {
				return &fakeSource{clk: clk, modeErr: boom}
			},
			ctx: context.Background,
		},
		{
			name: "fix query fails",
			src: func(clk *clock.Fake) *fakeSource {
				return &fakeSource{clk: clk, fixErr: boom}
			},
			ctx: context.Background,
		},
		{
			name: "cancelled while polling",
			src: func(clk *clock.Fake) *fakeSource {
				return &fakeSource{clk: clk}
			},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(epoch)
			src := tt.src(clk)

			r := NewResolver(src, clk, testLogger(), 100*time.Second, 2*time.Second)
			res, err := r.Resolve(tt.ctx())
			if err == nil {
				t.Fatal("expected error")
			}
			if res.Resolved {
				t.Error("failed attempt reported resolved")
			}
			if got := src.restores(); got != 1 {
				t.Errorf("periodic restored %d times, want 1", got)
			}
		})
	}
}

func TestResolveWithCardSource(t *testing.T) {
	clk := clock.NewFake(epoch)
	card := notecardtest.New()
	card.Respond("card.location",
		notecard.Response{"time": float64(100), "lat": 1.0, "lon": 2.0},
		notecard.Response{"time": float64(100), "lat": 1.0, "lon": 2.0},
		notecard.Response{"time": float64(160), "lat": 43.0, "lon": -89.0},
	)

	r := NewResolver(NewCardSource(card), clk, testLogger(), 0, 0)
	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Resolved || res.Fix.Latitude != 43.0 || !res.Fix.Valid {
		t.Errorf("Result = %+v", res)
	}

	modes := card.Calls("card.location.mode")
	if len(modes) != 2 {
		t.Fatalf("expected 2 mode requests, got %d", len(modes))
	}
	if modes[0]["mode"] != notecard.ModeContinuous || modes[1]["mode"] != notecard.ModePeriodic {
		t.Errorf("modes = %v, %v", modes[0]["mode"], modes[1]["mode"])
	}
}
