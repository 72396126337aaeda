package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"indoor-tracker/internal/notecard"
	"indoor-tracker/internal/sensor"
)

// Notefile is the outbound queue readings are added to
const Notefile = "indoor_tracker.qo"

// Location source tags carried in a Record
const (
	LocationGPS  = "gps"
	LocationWiFi = "wifi"
)

// Record is one composite reading, the body of a note
type Record struct {
	Temperature      float64  `json:"temperature"`
	Humidity         float64  `json:"humidity"`
	Pressure         float64  `json:"pressure"`
	Altitude         float64  `json:"altitude"`
	SeaLevelPressure float64  `json:"sealevelpressure"`
	Gas              *float64 `json:"gas,omitempty"`
	Voltage          float64  `json:"voltage"`
	Bars             int      `json:"bars"`
	RSSI             int      `json:"rssi"`
	Location         string   `json:"location,omitempty"`
}

// FromMedians starts a record from one sampling pass
func FromMedians(m sensor.Medians, seaLevel float64, loc string) Record {
	return Record{
		Temperature:      m.Temperature,
		Humidity:         m.Humidity,
		Pressure:         m.Pressure,
		Altitude:         m.Altitude,
		SeaLevelPressure: seaLevel,
		Gas:              m.Gas,
		Location:         loc,
	}
}

// Mirror receives every submitted record, e.g. for on-device consumers
type Mirror interface {
	PublishReading(ctx context.Context, rec Record) error
}

// Publisher completes records with device health and submits them for immediate sync
type Publisher struct {
	Card   notecard.Card
	Logger *slog.Logger
	Mirror Mirror
}

func NewPublisher(card notecard.Card, logger *slog.Logger, mirror Mirror) *Publisher {
	return &Publisher{
		Card:   card,
		Logger: logger,
		Mirror: mirror,
	}
}

// Publish fills in voltage and signal quality, then adds the note with sync set.
// Nothing is buffered; a failed submission is simply returned.
func (p *Publisher) Publish(ctx context.Context, rec Record) (Record, error) {
	voltage, err := notecard.Voltage(ctx, p.Card)
	if err != nil {
		return rec, err
	}
	rec.Voltage = voltage

	signal, err := notecard.Wireless(ctx, p.Card)
	if err != nil {
		return rec, err
	}
	rec.Bars = signal.Bars
	rec.RSSI = signal.RSSI

	if err := notecard.AddNote(ctx, p.Card, Notefile, rec, true); err != nil {
		return rec, fmt.Errorf("failed to submit reading: %w", err)
	}

	p.Logger.Info("Reading submitted",
		"temperature", fmt.Sprintf("%.1f", rec.Temperature),
		"humidity", fmt.Sprintf("%.1f", rec.Humidity),
		"pressure", fmt.Sprintf("%.3f", rec.Pressure),
		"altitude", fmt.Sprintf("%.2f", rec.Altitude),
		"sealevelpressure", fmt.Sprintf("%.3f", rec.SeaLevelPressure),
		"voltage", rec.Voltage,
		"bars", rec.Bars,
		"rssi", rec.RSSI,
		"location", rec.Location)

	if p.Mirror != nil {
		if err := p.Mirror.PublishReading(ctx, rec); err != nil {
			p.Logger.Warn("Failed to mirror reading", "error", err)
		}
	}

	return rec, nil
}
