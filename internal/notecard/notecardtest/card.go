// Package notecardtest provides a scripted in-memory card for tests
package notecardtest

import (
	"context"
	"sync"

	"indoor-tracker/internal/notecard"
)

// Handler computes the response to one request
type Handler func(req notecard.Request) (notecard.Response, error)

// Card records every request and answers from per-API scripts. APIs without a script
// get an empty response.
type Card struct {
	mu       sync.Mutex
	requests []notecard.Request
	handlers map[string]Handler
	queues   map[string][]notecard.Response

	// repeating marks queues whose last response has already been served
	repeating map[string]bool
}

func New() *Card {
	return &Card{
		handlers:  make(map[string]Handler),
		queues:    make(map[string][]notecard.Response),
		repeating: make(map[string]bool),
	}
}

// Handle installs a handler for the named API, replacing any queued responses
func (c *Card) Handle(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, name)
	delete(c.repeating, name)
	c.handlers[name] = h
}

// Respond queues responses for the named API. The last one is repeated once the queue
// drains; responding again after that replaces the repeated response.
func (c *Card) Respond(name string, rsps ...notecard.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, name)
	if c.repeating[name] {
		delete(c.queues, name)
		delete(c.repeating, name)
	}
	c.queues[name] = append(c.queues[name], rsps...)
}

func (c *Card) Transaction(ctx context.Context, req notecard.Request) (notecard.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	recorded := make(notecard.Request, len(req))
	for k, v := range req {
		recorded[k] = v
	}
	c.requests = append(c.requests, recorded)

	name := req.Name()
	handler := c.handlers[name]
	var rsp notecard.Response
	if queue := c.queues[name]; len(queue) > 0 {
		rsp = queue[0]
		if len(queue) > 1 {
			c.queues[name] = queue[1:]
		} else {
			c.repeating[name] = true
		}
	}
	c.mu.Unlock()

	if handler != nil {
		return handler(recorded)
	}
	if rsp == nil {
		rsp = notecard.Response{}
	}
	return rsp, nil
}

// Requests returns every request seen so far, in order
func (c *Card) Requests() []notecard.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notecard.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Calls returns the requests made to the named API
func (c *Card) Calls(name string) []notecard.Request {
	var out []notecard.Request
	for _, req := range c.Requests() {
		if req.Name() == name {
			out = append(out, req)
		}
	}
	return out
}

// Count returns how many requests were made to the named API
func (c *Card) Count(name string) int {
	return len(c.Calls(name))
}
