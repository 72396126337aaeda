package notecard

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const (
	DefaultPort     = "/dev/ttyACM0"
	DefaultBaudRate = 9600

	// Requests are written in segments so the card's UART buffer is not overrun
	segmentMaxLen = 250
	segmentDelay  = 25 * time.Millisecond

	readPollTimeout = 250 * time.Millisecond
)

// DefaultTimeout bounds a single transaction. Some APIs legitimately take longer.
var DefaultTimeout = 30 * time.Second

var requestTimeouts = map[string]time.Duration{
	"web.get":  90 * time.Second,
	"hub.sync": 60 * time.Second,
	"note.add": 60 * time.Second,
}

// SerialCard talks to the card over a serial or USB CDC port using newline-terminated JSON
type SerialCard struct {
	port    serial.Port
	pending []byte
	mu      sync.Mutex
	debug   bool
	logger  func(string, ...interface{})
}

// OpenSerial opens the port and resets the card's request parser
func OpenSerial(portName string, baudRate int, debug bool, logger func(string, ...interface{})) (*SerialCard, error) {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}

	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}

	c := &SerialCard{
		port:   port,
		debug:  debug,
		logger: logger,
	}

	if err := c.reset(); err != nil {
		port.Close()
		return nil, err
	}

	return c, nil
}

// Close closes the serial port
func (c *SerialCard) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}

// Transaction sends req and waits for the single-line response
func (c *SerialCard) Transaction(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", req.Name())
	}

	c.log(">> %s", payload)

	// Drop anything left over from an earlier timed-out transaction
	c.pending = c.pending[:0]
	if err := c.port.ResetInputBuffer(); err != nil {
		c.log("Warning: failed to reset input buffer: %v", err)
	}

	if err := c.write(ctx, append(payload, '\n')); err != nil {
		return nil, errors.Wrapf(err, "failed to send %s", req.Name())
	}

	timeout := DefaultTimeout
	if t, ok := requestTimeouts[req.Name()]; ok {
		timeout = t
	}

	line, err := c.readLine(ctx, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "no response to %s", req.Name())
	}

	c.log("<< %s", line)

	var rsp Response
	if err := json.Unmarshal(line, &rsp); err != nil {
		return nil, errors.Wrapf(err, "malformed response to %s", req.Name())
	}

	return rsp, nil
}

// reset sends a bare newline so a partially received request is discarded by the card
func (c *SerialCard) reset() error {
	if _, err := c.port.Write([]byte("\n")); err != nil {
		return errors.Wrap(err, "failed to reset card")
	}
	time.Sleep(segmentDelay)
	if err := c.port.ResetInputBuffer(); err != nil {
		return errors.Wrap(err, "failed to drain input")
	}
	return nil
}

func (c *SerialCard) write(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := min(len(data), segmentMaxLen)
		if _, err := c.port.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]

		if len(data) > 0 {
			time.Sleep(segmentDelay)
		}
	}
	return nil
}

func (c *SerialCard) readLine(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 512)

	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := append([]byte(nil), bytes.TrimSpace(c.pending[:i])...)
			c.pending = append(c.pending[:0], c.pending[i+1:]...)
			if len(line) == 0 {
				continue
			}
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("timed out after %v", timeout)
		}

		// Read returns 0 bytes without error when the poll timeout expires
		n, err := c.port.Read(buf)
		if err != nil {
			return nil, err
		}
		c.pending = append(c.pending, buf[:n]...)
	}
}

func (c *SerialCard) log(format string, args ...interface{}) {
	if c.debug {
		c.logger("[CARD] "+format, args...)
	}
}
