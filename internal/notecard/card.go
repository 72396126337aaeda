package notecard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Request is a single JSON request object sent to the card. The "req" field names the API.
type Request map[string]interface{}

// Response is the JSON object the card returns for a Request. Fields are present or absent
// per API; accessors below report absence instead of failing.
type Response map[string]interface{}

// Card performs synchronous request/response transactions with the module
type Card interface {
	Transaction(ctx context.Context, req Request) (Response, error)
}

// NewRequest creates a request for the named API
func NewRequest(name string) Request {
	return Request{"req": name}
}

// Name returns the API the request targets
func (r Request) Name() string {
	name, _ := r["req"].(string)
	return name
}

// Error is returned when the card answers a request with an "err" field
type Error struct {
	Request string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Request, e.Message)
}

// Err returns the card-reported error for req, or nil
func (r Response) Err(req Request) error {
	msg, ok := r["err"].(string)
	if !ok || msg == "" {
		return nil
	}
	return &Error{Request: req.Name(), Message: msg}
}

// Has reports whether the field is present
func (r Response) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r[key]
	return ok
}

// Float returns a numeric field. NaN and infinities are reported as absent.
func (r Response) Float(key string) (float64, bool) {
	f, ok := r.float(key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (r Response) float(key string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns a numeric field truncated to an integer
func (r Response) Int(key string) (int64, bool) {
	if r == nil {
		return 0, false
	}
	switch v := r[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := r.Float(key)
	return int64(f), ok
}

// String returns a string field
func (r Response) String(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	s, ok := r[key].(string)
	return s, ok
}

// Bool returns a boolean field, false when absent
func (r Response) Bool(key string) bool {
	if r == nil {
		return false
	}
	b, _ := r[key].(bool)
	return b
}

// Object returns a nested object field, nil when absent or not an object
func (r Response) Object(key string) Response {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case map[string]interface{}:
		return Response(v)
	case Response:
		return v
	default:
		return nil
	}
}
