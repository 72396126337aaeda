package redis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"indoor-tracker/internal/location"
	"indoor-tracker/internal/telemetry"
)

// getTestRedisURL returns the Redis URL for testing
func getTestRedisURL() string {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	return url
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestClient creates a test client and cleans up test data
func setupTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := New(getTestRedisURL(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() {
		client.client.Del(ctx, TrackerKey, LocationKey)
		client.Close()
	})

	return client
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		redisURL string
		wantErr  bool
	}{
		{
			name:     "valid URL with port",
			redisURL: "redis://localhost:6379",
		},
		{
			name:     "valid URL with database",
			redisURL: "redis://localhost:6379/2",
		},
		{
			name:     "unix socket",
			redisURL: "unix:///run/redis/redis.sock",
		},
		{
			name:     "unsupported scheme",
			redisURL: "http://localhost:6379",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.redisURL, testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if client != nil {
				client.Close()
			}
		})
	}
}

func TestPublishReading(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	gas := 5200.5
	rec := telemetry.Record{
		Temperature: 21.5,
		Humidity:    38,
		Pressure:    1002.4,
		Gas:         &gas,
		Voltage:     4.1,
		Bars:        2,
		RSSI:        -80,
		Location:    telemetry.LocationWiFi,
	}

	if err := client.PublishReading(ctx, rec); err != nil {
		t.Fatalf("PublishReading() error = %v", err)
	}

	got, err := client.client.HGetAll(ctx, TrackerKey).Result()
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	want := map[string]string{
		"temperature": "21.5",
		"bars":        "2",
		"rssi":        "-80",
		"gas":         "5200.5",
		"location":    "wifi",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	// A reading without gas clears the stale field
	rec.Gas = nil
	if err := client.PublishReading(ctx, rec); err != nil {
		t.Fatalf("PublishReading() error = %v", err)
	}
	exists, err := client.client.HExists(ctx, TrackerKey, "gas").Result()
	if err != nil {
		t.Fatalf("HExists() error = %v", err)
	}
	if exists {
		t.Error("gas field should have been removed")
	}
}

func TestPublishLocation(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	fix := location.Fix{Latitude: 43.05, Longitude: -89.5, Time: 1700000000, Valid: true}
	if err := client.PublishLocation(ctx, "gps", fix); err != nil {
		t.Fatalf("PublishLocation() error = %v", err)
	}

	got, err := client.client.HGetAll(ctx, LocationKey).Result()
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	if got["source"] != "gps" || got["latitude"] != "43.05" || got["fix-time"] != "1700000000" {
		t.Errorf("location hash = %v", got)
	}
	t.Logf("location hash: %v", got)

	// A later attempt without a fix drops the previous coordinates
	if err := client.PublishLocation(ctx, "wifi", location.Fix{}); err != nil {
		t.Fatalf("PublishLocation() error = %v", err)
	}
	got, err = client.client.HGetAll(ctx, LocationKey).Result()
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	if got["source"] != "wifi" {
		t.Errorf("source = %q, want wifi", got["source"])
	}
	for _, field := range []string{"latitude", "longitude", "fix-time"} {
		if _, ok := got[field]; ok {
			t.Errorf("stale %s left in location hash: %v", field, got)
		}
	}
}
