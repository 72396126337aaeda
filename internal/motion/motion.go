package motion

import (
	"context"

	"indoor-tracker/internal/notecard"
)

// Counter reports how many movements were seen since the previous call
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// CardCounter reads the card's accelerometer motion counter
type CardCounter struct {
	Card notecard.Card
}

func NewCardCounter(card notecard.Card) *CardCounter {
	return &CardCounter{Card: card}
}

// Start enables motion tracking on the card
func (c *CardCounter) Start(ctx context.Context) error {
	return notecard.StartMotionTracking(ctx, c.Card)
}

func (c *CardCounter) Count(ctx context.Context) (int, error) {
	return notecard.MotionCount(ctx, c.Card)
}
