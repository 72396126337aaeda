package sensor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"indoor-tracker/internal/clock"
)

type fakeReader struct {
	reads    int
	gas      bool
	seaLevel float64
	failAt   int
}

func (f *fakeReader) Read() (Reading, error) {
	f.reads++
	if f.failAt > 0 && f.reads == f.failAt {
		return Reading{}, errors.New("i2c nack")
	}
	// Values cycle so the medians are predictable: 0..9 repeated
	v := float64((f.reads - 1) % 10)
	return Reading{
		Temperature: 20 + v,
		Humidity:    40 + v,
		Pressure:    1000 + v,
		Altitude:    100 + v,
		Gas:         5000 + v,
	}, nil
}

func (f *fakeReader) SetSeaLevelPressure(hPa float64) {
	f.seaLevel = hPa
}

func (f *fakeReader) Capabilities() Capabilities {
	return Capabilities{Gas: f.gas}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSample(t *testing.T) {
	tests := []struct {
		name    string
		gas     bool
		wantGas bool
	}{
		{name: "without gas", gas: false},
		{name: "with gas", gas: true, wantGas: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
			reader := &fakeReader{gas: tt.gas}

			s := NewSampler(reader, clk, testLogger(), 0, 100*time.Millisecond)
			buf, med, err := s.Sample(context.Background())
			if err != nil {
				t.Fatalf("Sample() error = %v", err)
			}

			if reader.reads != DefaultSamples {
				t.Errorf("reads = %d, want %d", reader.reads, DefaultSamples)
			}
			for name, series := range map[string][]float64{
				"temperature": buf.Temperature,
				"humidity":    buf.Humidity,
				"pressure":    buf.Pressure,
				"altitude":    buf.Altitude,
			} {
				if len(series) != DefaultSamples {
					t.Errorf("%s buffer has %d samples, want %d", name, len(series), DefaultSamples)
				}
			}

			// 0..9 five times: middle pair is 4 and 5
			if med.Temperature != 24.5 || med.Humidity != 44.5 || med.Pressure != 1004.5 || med.Altitude != 104.5 {
				t.Errorf("medians = %+v", med)
			}

			if tt.wantGas {
				if med.Gas == nil || *med.Gas != 5004.5 {
					t.Errorf("gas median = %v, want 5004.5", med.Gas)
				}
				if len(buf.Gas) != DefaultSamples {
					t.Errorf("gas buffer has %d samples", len(buf.Gas))
				}
			} else if med.Gas != nil || buf.Gas != nil {
				t.Error("gas reported by sensor without gas capability")
			}

			if len(clk.Slept) != DefaultSamples {
				t.Errorf("slept %d times, want %d", len(clk.Slept), DefaultSamples)
			}
			for _, d := range clk.Slept {
				if d != 100*time.Millisecond {
					t.Fatalf("slept %v between reads, want 100ms", d)
				}
			}
		})
	}
}

func TestSampleReadError(t *testing.T) {
	clk := clock.NewFake(time.Now())
	reader := &fakeReader{failAt: 7}

	s := NewSampler(reader, clk, testLogger(), 50, 50*time.Millisecond)
	_, _, err := s.Sample(context.Background())
	if err == nil {
		t.Fatal("expected read error")
	}
	if reader.reads != 7 {
		t.Errorf("reads = %d, sampling should stop at the failure", reader.reads)
	}
}

func TestCalibrate(t *testing.T) {
	clk := clock.NewFake(time.Now())
	reader := &fakeReader{}

	s := NewSampler(reader, clk, testLogger(), 1, 0)
	if err := s.Calibrate(context.Background(), 1008.2); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if reader.seaLevel != 1008.2 {
		t.Errorf("sea level = %v, want 1008.2", reader.seaLevel)
	}
	if len(clk.Slept) != 1 || clk.Slept[0] != CalibrationSettle {
		t.Errorf("slept %v, want one %v settle", clk.Slept, CalibrationSettle)
	}
}

func TestAltitude(t *testing.T) {
	tests := []struct {
		name     string
		pressure float64
		seaLevel float64
		want     float64
	}{
		{"at sea level", 1013.25, 1013.25, 0},
		{"roughly 110m", 1000, 1013.25, 110.9},
		{"no pressure", 0, 1013.25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Altitude(tt.pressure, tt.seaLevel)
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("Altitude(%v, %v) = %v, want ~%v", tt.pressure, tt.seaLevel, got, tt.want)
			}
		})
	}
}
