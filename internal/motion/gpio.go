package motion

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const (
	DefaultGPIOChip = "gpiochip0"
	DefaultDebounce = 10 * time.Millisecond
)

// edgeCounter accumulates edges between reads
type edgeCounter struct {
	n atomic.Int64
}

func (e *edgeCounter) add() {
	e.n.Add(1)
}

// take returns the count and resets it
func (e *edgeCounter) take() int {
	return int(e.n.Swap(0))
}

// GPIOCounter counts rising edges on an interrupt line, e.g. a PIR sensor output or an
// accelerometer's motion interrupt pin
type GPIOCounter struct {
	Chip   string
	Offset int

	line   *gpiocdev.Line
	edges  edgeCounter
	logger func(string, ...interface{})
}

func NewGPIOCounter(chip string, offset int, logger func(string, ...interface{})) *GPIOCounter {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	if chip == "" {
		chip = DefaultGPIOChip
	}

	return &GPIOCounter{
		Chip:   chip,
		Offset: offset,
		logger: logger,
	}
}

// Start requests the line as an edge-detecting input
func (c *GPIOCounter) Start(ctx context.Context) error {
	if c.line != nil {
		return nil
	}

	line, err := gpiocdev.RequestLine(c.Chip, c.Offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithDebounce(DefaultDebounce),
		gpiocdev.WithEventHandler(c.handleEvent),
		gpiocdev.WithConsumer("indoor-tracker-motion"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to request GPIO line")
	}

	c.line = line
	c.log("Motion line initialized (chip=%s, line=%d)", c.Chip, c.Offset)
	return nil
}

func (c *GPIOCounter) handleEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	c.edges.add()
}

func (c *GPIOCounter) Count(ctx context.Context) (int, error) {
	if c.line == nil {
		return 0, errors.New("GPIO not initialized")
	}
	return c.edges.take(), nil
}

// Close releases the GPIO line
func (c *GPIOCounter) Close() error {
	if c.line == nil {
		return nil
	}

	err := c.line.Close()
	c.line = nil
	c.log("Motion line closed")
	return err
}

func (c *GPIOCounter) log(format string, args ...interface{}) {
	c.logger("[GPIO] "+format, args...)
}
