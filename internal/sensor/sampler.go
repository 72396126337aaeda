package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"indoor-tracker/internal/aggregate"
	"indoor-tracker/internal/clock"
)

const (
	DefaultSamples     = 50
	DefaultSampleDelay = 100 * time.Millisecond
	// CalibrationSettle is the pause after changing the sea-level calibration
	CalibrationSettle = time.Second
)

// Buffers holds one raw sample series per quantity. Gas is nil when unsupported.
type Buffers struct {
	Temperature []float64
	Humidity    []float64
	Pressure    []float64
	Altitude    []float64
	Gas         []float64
}

// Medians is the per-quantity median of one sampling pass
type Medians struct {
	Temperature float64
	Humidity    float64
	Pressure    float64
	Altitude    float64
	Gas         *float64
}

// Sampler takes a fixed number of readings at a fixed cadence and reduces them to medians
type Sampler struct {
	Reader  Reader
	Clock   clock.Clock
	Logger  *slog.Logger
	Samples int
	Delay   time.Duration
}

func NewSampler(reader Reader, clk clock.Clock, logger *slog.Logger, samples int, delay time.Duration) *Sampler {
	if clk == nil {
		clk = clock.Real{}
	}
	if samples <= 0 {
		samples = DefaultSamples
	}
	if delay < 0 {
		delay = DefaultSampleDelay
	}

	return &Sampler{
		Reader:  reader,
		Clock:   clk,
		Logger:  logger,
		Samples: samples,
		Delay:   delay,
	}
}

// Calibrate sets the sea-level pressure used for altitude and waits for the sensor to settle
func (s *Sampler) Calibrate(ctx context.Context, hPa float64) error {
	s.Reader.SetSeaLevelPressure(hPa)
	s.Logger.Debug("Sea-level pressure set", "hpa", hPa)
	return s.Clock.Sleep(ctx, CalibrationSettle)
}

// Sample runs one pass of Samples reads, pausing Delay after each
func (s *Sampler) Sample(ctx context.Context) (Buffers, Medians, error) {
	gas := s.Reader.Capabilities().Gas

	b := Buffers{
		Temperature: make([]float64, 0, s.Samples),
		Humidity:    make([]float64, 0, s.Samples),
		Pressure:    make([]float64, 0, s.Samples),
		Altitude:    make([]float64, 0, s.Samples),
	}
	if gas {
		b.Gas = make([]float64, 0, s.Samples)
	}

	for i := 0; i < s.Samples; i++ {
		r, err := s.Reader.Read()
		if err != nil {
			return b, Medians{}, fmt.Errorf("sample %d: %w", i+1, err)
		}

		b.Temperature = append(b.Temperature, r.Temperature)
		b.Humidity = append(b.Humidity, r.Humidity)
		b.Pressure = append(b.Pressure, r.Pressure)
		b.Altitude = append(b.Altitude, r.Altitude)
		if gas {
			b.Gas = append(b.Gas, r.Gas)
		}

		if err := s.Clock.Sleep(ctx, s.Delay); err != nil {
			return b, Medians{}, err
		}
	}

	m := Medians{
		Temperature: aggregate.Median(b.Temperature),
		Humidity:    aggregate.Median(b.Humidity),
		Pressure:    aggregate.Median(b.Pressure),
		Altitude:    aggregate.Median(b.Altitude),
	}
	if gas {
		g := aggregate.Median(b.Gas)
		m.Gas = &g
	}

	s.logSpread(b)
	return b, m, nil
}

func (s *Sampler) logSpread(b Buffers) {
	if !s.Logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	series := map[string][]float64{
		"temperature": b.Temperature,
		"humidity":    b.Humidity,
		"pressure":    b.Pressure,
		"altitude":    b.Altitude,
	}
	if b.Gas != nil {
		series["gas"] = b.Gas
	}

	for name, samples := range series {
		sum := aggregate.Summarize(samples)
		s.Logger.Debug("Sample spread",
			"quantity", name,
			"count", sum.Count,
			"median", sum.Median,
			"mean", sum.Mean,
			"stddev", sum.StdDev,
			"min", sum.Min,
			"max", sum.Max)
	}
}
