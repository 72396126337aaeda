package notecard_test

import (
	"context"
	"errors"
	"testing"

	"indoor-tracker/internal/notecard"
	"indoor-tracker/internal/notecard/notecardtest"
)

func TestGetLocation(t *testing.T) {
	tests := []struct {
		name        string
		rsp         notecard.Response
		wantTime    int64
		wantCoords  bool
		wantStopped bool
	}{
		{
			name:       "fix with coordinates",
			rsp:        notecard.Response{"lat": 43.07, "lon": -89.4, "time": float64(1700000000)},
			wantTime:   1700000000,
			wantCoords: true,
		},
		{
			name: "no fix yet",
			rsp:  notecard.Response{"status": "GPS search (12 sec)"},
		},
		{
			name:        "internal stop",
			rsp:         notecard.Response{"stop": true, "time": float64(5)},
			wantTime:    5,
			wantStopped: true,
		},
		{
			name: "card error is not fatal",
			rsp:  notecard.Response{"err": "no location {no-location}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := notecardtest.New()
			card.Respond("card.location", tt.rsp)

			loc, err := notecard.GetLocation(context.Background(), card)
			if err != nil {
				t.Fatalf("GetLocation() error = %v", err)
			}
			if loc.Time != tt.wantTime {
				t.Errorf("Time = %d, want %d", loc.Time, tt.wantTime)
			}
			if loc.HasCoords != tt.wantCoords {
				t.Errorf("HasCoords = %t, want %t", loc.HasCoords, tt.wantCoords)
			}
			if loc.Stopped != tt.wantStopped {
				t.Errorf("Stopped = %t, want %t", loc.Stopped, tt.wantStopped)
			}
		})
	}
}

func TestWirelessMissingNet(t *testing.T) {
	card := notecardtest.New()
	card.Respond("card.wireless", notecard.Response{"status": "{modem-off}"})

	sig, err := notecard.Wireless(context.Background(), card)
	if err != nil {
		t.Fatalf("Wireless() error = %v", err)
	}
	if sig.Bars != 0 || sig.RSSI != 0 {
		t.Errorf("Wireless() = %+v, want zero signal", sig)
	}

	card.Respond("card.wireless", notecard.Response{
		"net": map[string]interface{}{"bars": float64(3), "rssi": float64(-71)},
	})
	sig, err = notecard.Wireless(context.Background(), card)
	if err != nil {
		t.Fatalf("Wireless() error = %v", err)
	}
	if sig.Bars != 3 || sig.RSSI != -71 {
		t.Errorf("Wireless() = %+v, want bars 3 rssi -71", sig)
	}
}

func TestAddNoteCardError(t *testing.T) {
	card := notecardtest.New()
	card.Respond("note.add", notecard.Response{"err": "notefile full"})

	err := notecard.AddNote(context.Background(), card, "indoor_tracker.qo", map[string]interface{}{"a": 1}, true)
	if err == nil {
		t.Fatal("expected error for card-reported failure")
	}

	var cardErr *notecard.Error
	if !errors.As(err, &cardErr) {
		t.Fatalf("expected *notecard.Error in chain, got %T", err)
	}
	if cardErr.Request != "note.add" {
		t.Errorf("Request = %q, want note.add", cardErr.Request)
	}

	calls := card.Calls("note.add")
	if len(calls) != 1 {
		t.Fatalf("expected 1 note.add, got %d", len(calls))
	}
	if calls[0]["sync"] != true {
		t.Errorf("sync = %v, want true", calls[0]["sync"])
	}
	if calls[0]["file"] != "indoor_tracker.qo" {
		t.Errorf("file = %v", calls[0]["file"])
	}
}

func TestMotionCount(t *testing.T) {
	card := notecardtest.New()
	card.Respond("card.motion",
		notecard.Response{"count": float64(3)},
		notecard.Response{},
	)

	count, err := notecard.MotionCount(context.Background(), card)
	if err != nil || count != 3 {
		t.Errorf("MotionCount() = %d, %v, want 3", count, err)
	}

	count, err = notecard.MotionCount(context.Background(), card)
	if err != nil || count != 0 {
		t.Errorf("MotionCount() = %d, %v, want 0 for absent count", count, err)
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	card := notecardtest.New()
	boom := errors.New("i/o error")
	card.Handle("card.voltage", func(notecard.Request) (notecard.Response, error) {
		return nil, boom
	})

	if _, err := notecard.Voltage(context.Background(), card); !errors.Is(err, boom) {
		t.Errorf("Voltage() error = %v, want wrapped %v", err, boom)
	}
}

func TestResponseAccessors(t *testing.T) {
	rsp := notecard.Response{
		"f":   2.5,
		"s":   "12.25",
		"b":   true,
		"obj": map[string]interface{}{"x": float64(1)},
	}

	if v, ok := rsp.Float("f"); !ok || v != 2.5 {
		t.Errorf("Float(f) = %v, %t", v, ok)
	}
	if v, ok := rsp.Float("s"); !ok || v != 12.25 {
		t.Errorf("Float(s) = %v, %t", v, ok)
	}
	if _, ok := rsp.Float("missing"); ok {
		t.Error("Float(missing) reported present")
	}
	if !rsp.Bool("b") {
		t.Error("Bool(b) = false")
	}
	if v, ok := rsp.Object("obj").Int("x"); !ok || v != 1 {
		t.Errorf("Object(obj).Int(x) = %d, %t", v, ok)
	}
	if rsp.Object("missing").Has("x") {
		t.Error("nil object reported field")
	}
}

func TestResponseFloatRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		want   float64
		wantOK bool
	}{
		{"number", float64(1013.2), 1013.2, true},
		{"numeric string", "998.4", 998.4, true},
		{"NaN string", "NaN", 0, false},
		{"infinity string", "+Inf", 0, false},
		{"negative infinity", "-Inf", 0, false},
		{"not a number", "n/a", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := notecard.Response{"pressure": tt.value}.Float("pressure")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Float() = %v, %t, want %v, %t", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
