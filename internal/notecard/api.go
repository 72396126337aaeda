package notecard

import (
	"context"

	"github.com/pkg/errors"
)

// Request helpers for the card APIs the tracker uses

// Hub and location operating modes
const (
	ModePeriodic   = "periodic"
	ModeContinuous = "continuous"
)

// Location is the card's last known GNSS fix as reported by card.location
type Location struct {
	Latitude  float64
	Longitude float64
	Time      int64
	HasCoords bool
	// Stopped is set when the card gave up acquiring a fix on its own
	Stopped bool
	Status  string
}

// Signal is the cellular signal quality reported by card.wireless
type Signal struct {
	Bars int
	RSSI int
}

// transact sends req and turns a card-reported error into a Go error
func transact(ctx context.Context, card Card, req Request) (Response, error) {
	rsp, err := card.Transaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := rsp.Err(req); err != nil {
		return rsp, err
	}
	return rsp, nil
}

// HubSet associates the card with a project and sets its sync mode
func HubSet(ctx context.Context, card Card, product, serialNumber, mode string) error {
	req := NewRequest("hub.set")
	if product != "" {
		req["product"] = product
	}
	if serialNumber != "" {
		req["sn"] = serialNumber
	}
	if mode != "" {
		req["mode"] = mode
	}

	_, err := transact(ctx, card, req)
	return errors.Wrap(err, "failed to configure hub")
}

// SetHubMode switches connectivity between periodic and continuous
func SetHubMode(ctx context.Context, card Card, mode string) error {
	req := NewRequest("hub.set")
	req["mode"] = mode

	_, err := transact(ctx, card, req)
	return errors.Wrapf(err, "failed to set hub mode %s", mode)
}

// Sync asks the card to sync with the cloud now
func Sync(ctx context.Context, card Card) error {
	_, err := transact(ctx, card, NewRequest("hub.sync"))
	return errors.Wrap(err, "failed to request sync")
}

// Connected reports whether the card currently holds a cloud session
func Connected(ctx context.Context, card Card) (bool, error) {
	rsp, err := card.Transaction(ctx, NewRequest("hub.status"))
	if err != nil {
		return false, errors.Wrap(err, "failed to query hub status")
	}
	return rsp.Bool("connected"), nil
}

// SetLocationMode switches the GNSS subsystem between periodic and continuous tracking
func SetLocationMode(ctx context.Context, card Card, mode string) error {
	req := NewRequest("card.location.mode")
	req["mode"] = mode

	_, err := transact(ctx, card, req)
	return errors.Wrapf(err, "failed to set location mode %s", mode)
}

// GetLocation returns the last fix. A card-reported error (no fix yet, GPS inactive) is
// not an error here: the returned Location simply carries no time.
func GetLocation(ctx context.Context, card Card) (Location, error) {
	rsp, err := card.Transaction(ctx, NewRequest("card.location"))
	if err != nil {
		return Location{}, errors.Wrap(err, "failed to query location")
	}

	loc := Location{
		Stopped: rsp.Has("stop"),
	}
	loc.Time, _ = rsp.Int("time")
	loc.Status, _ = rsp.String("status")

	lat, hasLat := rsp.Float("lat")
	lon, hasLon := rsp.Float("lon")
	if hasLat && hasLon {
		loc.Latitude = lat
		loc.Longitude = lon
		loc.HasCoords = true
	}

	return loc, nil
}

// StartMotionTracking enables the accelerometer motion counter
func StartMotionTracking(ctx context.Context, card Card) error {
	req := NewRequest("card.motion.mode")
	req["start"] = true

	_, err := transact(ctx, card, req)
	return errors.Wrap(err, "failed to start motion tracking")
}

// MotionCount returns the number of movements since the previous call
func MotionCount(ctx context.Context, card Card) (int, error) {
	rsp, err := card.Transaction(ctx, NewRequest("card.motion"))
	if err != nil {
		return 0, errors.Wrap(err, "failed to query motion")
	}

	count, _ := rsp.Int("count")
	if count < 0 {
		count = 0
	}
	return int(count), nil
}

// SetTriangulationMode enables triangulation using the given radio ("wifi", "cell")
func SetTriangulationMode(ctx context.Context, card Card, mode string) error {
	req := NewRequest("card.triangulate")
	req["mode"] = mode

	_, err := transact(ctx, card, req)
	return errors.Wrapf(err, "failed to set triangulation mode %s", mode)
}

// SubmitTriangulation hands the card newline-terminated access point records
func SubmitTriangulation(ctx context.Context, card Card, text string) error {
	req := NewRequest("card.triangulate")
	req["text"] = text

	_, err := transact(ctx, card, req)
	return errors.Wrap(err, "failed to submit access points")
}

// Voltage returns the supply voltage, 0 when the card does not report one
func Voltage(ctx context.Context, card Card) (float64, error) {
	rsp, err := card.Transaction(ctx, NewRequest("card.voltage"))
	if err != nil {
		return 0, errors.Wrap(err, "failed to query voltage")
	}

	value, _ := rsp.Float("value")
	return value, nil
}

// Wireless returns signal bars and RSSI, zero when the modem has no network info yet
func Wireless(ctx context.Context, card Card) (Signal, error) {
	rsp, err := card.Transaction(ctx, NewRequest("card.wireless"))
	if err != nil {
		return Signal{}, errors.Wrap(err, "failed to query wireless")
	}

	net := rsp.Object("net")
	bars, _ := net.Int("bars")
	rssi, _ := net.Int("rssi")
	return Signal{Bars: int(bars), RSSI: int(rssi)}, nil
}

// AddNote queues body in the named notefile, optionally syncing immediately
func AddNote(ctx context.Context, card Card, file string, body interface{}, sync bool) error {
	req := NewRequest("note.add")
	req["file"] = file
	req["body"] = body
	if sync {
		req["sync"] = true
	}

	_, err := transact(ctx, card, req)
	return errors.Wrapf(err, "failed to add note to %s", file)
}

// WebGet performs an HTTP GET through a cloud proxy route
func WebGet(ctx context.Context, card Card, route, name string) (Response, error) {
	req := NewRequest("web.get")
	req["route"] = route
	req["name"] = name

	rsp, err := transact(ctx, card, req)
	if err != nil {
		return rsp, errors.Wrapf(err, "web.get via route %s failed", route)
	}
	return rsp, nil
}
