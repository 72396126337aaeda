package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"indoor-tracker/internal/notecard"
)

const metricPrefix = "indoor_tracker_"

// Location outcomes
const (
	LocationGPS  = "gps"
	LocationWiFi = "wifi"
	LocationNone = "none"
)

// Metrics bundles the tracker's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal         *prometheus.CounterVec
	MotionEventsTotal   prometheus.Counter
	LocationTotal       *prometheus.CounterVec
	PublishTotal        *prometheus.CounterVec
	TransactionErrors   *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	ConsecutiveFailures prometheus.Gauge
	LastReading         *prometheus.GaugeVec
	SeaLevelPressureHPa prometheus.Gauge
	registry            *prometheus.Registry
}

// New constructs the collectors and registers them on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total motion poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		MotionEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "motion_events_total",
			Help: "Total movements reported by the motion counter",
		}),
		LocationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "location_total",
				Help: "Total location attempts by source that produced the position",
			},
			[]string{"source"},
		),
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_total",
				Help: "Total reading submissions by result",
			},
			[]string{"result"},
		),
		TransactionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "card_transaction_errors_total",
				Help: "Total failed card transactions by request",
			},
			[]string{"request"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "cycle_duration_seconds",
			Help:    "Duration of cycles that ran the location and sampling pipeline",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "consecutive_failures",
			Help: "Number of consecutive failed cycles",
		}),
		LastReading: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_reading",
				Help: "Most recently submitted median per quantity",
			},
			[]string{"quantity"},
		),
		SeaLevelPressureHPa: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "sea_level_pressure_hpa",
			Help: "Sea-level pressure calibration in use",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.MotionEventsTotal,
		m.LocationTotal,
		m.PublishTotal,
		m.TransactionErrors,
		m.CycleDuration,
		m.ConsecutiveFailures,
		m.LastReading,
		m.SeaLevelPressureHPa,
	)
	return m
}

// Registry exposes the registry for serving and tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle records a cycle outcome: "idle", "ok" or "error"
func (m *Metrics) ObserveCycle(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	if outcome != "idle" {
		m.CycleDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) AddMotion(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.MotionEventsTotal.Add(float64(count))
}

func (m *Metrics) IncLocation(source string) {
	if m == nil {
		return
	}
	m.LocationTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) IncPublish(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.PublishTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetFailures(n int) {
	if m == nil {
		return
	}
	m.ConsecutiveFailures.Set(float64(n))
}

// SetReading records the medians of the latest submitted reading
func (m *Metrics) SetReading(quantities map[string]float64, seaLevel float64) {
	if m == nil {
		return
	}
	for q, v := range quantities {
		m.LastReading.WithLabelValues(q).Set(v)
	}
	m.SeaLevelPressureHPa.Set(seaLevel)
}

// meteredCard counts failed transactions per request name
type meteredCard struct {
	card    notecard.Card
	metrics *Metrics
}

// InstrumentCard wraps card so failed transactions, including card-reported errors, are counted
func InstrumentCard(card notecard.Card, m *Metrics) notecard.Card {
	if m == nil {
		return card
	}
	return &meteredCard{card: card, metrics: m}
}

func (c *meteredCard) Transaction(ctx context.Context, req notecard.Request) (notecard.Response, error) {
	rsp, err := c.card.Transaction(ctx, req)
	if err != nil || rsp.Err(req) != nil {
		c.metrics.TransactionErrors.WithLabelValues(req.Name()).Inc()
	}
	return rsp, err
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
