package clock

import (
	"context"
	"time"
)

// Clock abstracts wall time so polling loops can be driven deterministically in tests
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the system clock
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done, whichever comes first
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake is a manually advanced clock. Sleep advances the clock instantly and never blocks.
type Fake struct {
	now    time.Time
	Slept  []time.Duration
	OnTick func(now time.Time)
}

// NewFake creates a fake clock starting at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Slept = append(f.Slept, d)
	f.Advance(d)
	return nil
}

// Advance moves the clock forward by d
func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	if f.OnTick != nil {
		f.OnTick(f.now)
	}
}
