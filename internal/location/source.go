package location

import (
	"context"
	"errors"

	"indoor-tracker/internal/notecard"
)

// Fix is a resolved coordinate with the epoch second it was acquired
type Fix struct {
	Latitude  float64
	Longitude float64
	Time      int64
	// Valid is set when the fix carries coordinates
	Valid bool
	// Stopped is set when the source gave up acquiring a fix on its own
	Stopped bool
}

// Check reports coordinates outside the WGS84 range
func (f Fix) Check() error {
	if f.Latitude < -90 || f.Latitude > 90 {
		return errors.New("lat out of range")
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return errors.New("lon out of range")
	}
	return nil
}

// Source is a location subsystem that can trade power for acquisition latency
type Source interface {
	SetMode(ctx context.Context, mode string) error
	Fix(ctx context.Context) (Fix, error)
}

// CardSource reads fixes from the card's own GNSS receiver
type CardSource struct {
	Card notecard.Card
}

func NewCardSource(card notecard.Card) *CardSource {
	return &CardSource{Card: card}
}

func (s *CardSource) SetMode(ctx context.Context, mode string) error {
	return notecard.SetLocationMode(ctx, s.Card, mode)
}

func (s *CardSource) Fix(ctx context.Context) (Fix, error) {
	loc, err := notecard.GetLocation(ctx, s.Card)
	if err != nil {
		return Fix{}, err
	}

	fix := Fix{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Time:      loc.Time,
		Stopped:   loc.Stopped,
	}
	fix.Valid = loc.HasCoords && fix.Check() == nil
	return fix, nil
}
