package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"indoor-tracker/internal/location"
	"indoor-tracker/internal/telemetry"
)

const (
	TrackerKey  = "tracker"
	LocationKey = "tracker:location"
)

// Client mirrors tracker state into local Redis for other on-device services
type Client struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a new Redis client
func New(redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %v", err)
	}

	client := redis.NewClient(opt)
	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// Ping checks if the Redis server is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PublishReading stores the latest submitted reading under the tracker hash and
// announces it on the tracker channel
func (c *Client) PublishReading(ctx context.Context, rec telemetry.Record) error {
	fields := map[string]interface{}{
		"temperature":      rec.Temperature,
		"humidity":         rec.Humidity,
		"pressure":         rec.Pressure,
		"altitude":         rec.Altitude,
		"sealevelpressure": rec.SeaLevelPressure,
		"voltage":          rec.Voltage,
		"bars":             rec.Bars,
		"rssi":             rec.RSSI,
		"location":         rec.Location,
		"timestamp":        time.Now().Unix(),
	}
	if rec.Gas != nil {
		fields["gas"] = *rec.Gas
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, TrackerKey, fields)
	if rec.Gas == nil {
		pipe.HDel(ctx, TrackerKey, "gas")
	}
	pipe.Publish(ctx, TrackerKey, "reading")
	_, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.Warn("Unable to set reading in redis", "error", err)
		return fmt.Errorf("cannot write reading to redis: %v", err)
	}
	return nil
}

// PublishLocation stores the outcome of the most recent location attempt. source is
// "gps", "wifi" or "none"; coordinates are only kept for a resolved fix.
func (c *Client) PublishLocation(ctx context.Context, source string, fix location.Fix) error {
	fields := map[string]interface{}{
		"source":    source,
		"timestamp": time.Now().Unix(),
	}
	if fix.Valid {
		fields["latitude"] = fix.Latitude
		fields["longitude"] = fix.Longitude
		fields["fix-time"] = fix.Time
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, LocationKey, fields)
	if !fix.Valid {
		pipe.HDel(ctx, LocationKey, "latitude", "longitude", "fix-time")
	}
	pipe.Publish(ctx, LocationKey, "source")
	_, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.Warn("Unable to set location in redis", "error", err)
		return fmt.Errorf("cannot write location to redis: %v", err)
	}
	return nil
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.client.Close()
}
