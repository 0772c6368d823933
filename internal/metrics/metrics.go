package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/logger"
)

// MetricsService exposes Prometheus metrics for Chronarr
type MetricsService struct {
	eventBus *eventbus.EventBus

	// Counters
	sensorUpdates      *prometheus.CounterVec
	timerFailures      *prometheus.CounterVec
	chimesFired        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	profileReloads     prometheus.Counter

	// Gauges
	sensorsActive    *prometheus.GaugeVec
	websocketClients prometheus.Gauge
	buildInfo        *prometheus.GaugeVec

	// Histograms
	timerDrift *prometheus.HistogramVec

	// Internal tracking
	mu             sync.Mutex
	activeSensors  map[string]int
	websocketCount int
}

// NewMetricsService creates and registers Prometheus metrics
func NewMetricsService(eb *eventbus.EventBus) *MetricsService {
	m := &MetricsService{
		eventBus:      eb,
		activeSensors: make(map[string]int),

		sensorUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronarr_sensor_updates_total",
				Help: "Total number of sensor value updates published",
			},
			[]string{"kind"},
		),

		timerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronarr_sensor_timer_failures_total",
				Help: "Total number of timer arm failures by sensor kind",
			},
			[]string{"kind"},
		),

		chimesFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronarr_chimes_fired_total",
				Help: "Total number of chime schedule firings",
			},
			[]string{"schedule"},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronarr_notifications_total",
				Help: "Total number of notifications sent by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		profileReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chronarr_profile_reloads_total",
				Help: "Total number of profile file reloads applied",
			},
		),

		sensorsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chronarr_sensors_active",
				Help: "Number of sensors currently scheduled by kind",
			},
			[]string{"kind"},
		),

		websocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chronarr_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chronarr_build_info",
				Help: "Build information, value is always 1",
			},
			[]string{"version"},
		),

		timerDrift: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chronarr_timer_drift_seconds",
				Help:    "Delay between the scheduled fire instant and event handling",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"kind"},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.sensorUpdates,
		m.timerFailures,
		m.chimesFired,
		m.notificationsTotal,
		m.profileReloads,
		m.sensorsActive,
		m.websocketClients,
		m.buildInfo,
		m.timerDrift,
	)

	return m
}

// Start subscribes to events and updates metrics
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.SensorActivated, m.handleSensorActivated)
	m.eventBus.Subscribe(domain.SensorDeactivated, m.handleSensorDeactivated)
	m.eventBus.Subscribe(domain.SensorValueChanged, m.handleSensorValueChanged)
	m.eventBus.Subscribe(domain.SensorTimerFailed, m.handleTimerFailed)
	m.eventBus.Subscribe(domain.ChimeFired, m.handleChimeFired)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)
	m.eventBus.Subscribe(domain.ProfilesFileReloaded, m.handleProfilesReloaded)

	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (m *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo records the running version. Value is always 1.
func (m *MetricsService) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// WebSocketClientConnected increments the connected client gauge.
func (m *MetricsService) WebSocketClientConnected() {
	m.mu.Lock()
	m.websocketCount++
	m.websocketClients.Set(float64(m.websocketCount))
	m.mu.Unlock()
}

// WebSocketClientDisconnected decrements the connected client gauge.
func (m *MetricsService) WebSocketClientDisconnected() {
	m.mu.Lock()
	if m.websocketCount > 0 {
		m.websocketCount--
		m.websocketClients.Set(float64(m.websocketCount))
	}
	m.mu.Unlock()
}

// Event handlers

func (m *MetricsService) handleSensorActivated(event domain.Event) {
	kind := event.GetStringOr("kind", "unknown")
	m.mu.Lock()
	m.activeSensors[kind]++
	m.sensorsActive.WithLabelValues(kind).Set(float64(m.activeSensors[kind]))
	m.mu.Unlock()
}

func (m *MetricsService) handleSensorDeactivated(event domain.Event) {
	kind := event.GetStringOr("kind", "unknown")
	m.mu.Lock()
	if m.activeSensors[kind] > 0 {
		m.activeSensors[kind]--
		m.sensorsActive.WithLabelValues(kind).Set(float64(m.activeSensors[kind]))
	}
	m.mu.Unlock()
}

func (m *MetricsService) handleSensorValueChanged(event domain.Event) {
	kind := event.GetStringOr("kind", "unknown")
	m.sensorUpdates.WithLabelValues(kind).Inc()

	// fired_at is the scheduled boundary instant, so the distance to now
	// is the observable delivery drift
	if firedAt, ok := event.GetString("fired_at"); ok {
		if t, err := time.Parse(time.RFC3339Nano, firedAt); err == nil {
			drift := time.Since(t).Seconds()
			if drift >= 0 {
				m.timerDrift.WithLabelValues(kind).Observe(drift)
			}
		}
	}
}

func (m *MetricsService) handleTimerFailed(event domain.Event) {
	kind := event.GetStringOr("kind", "unknown")
	m.timerFailures.WithLabelValues(kind).Inc()
}

func (m *MetricsService) handleChimeFired(event domain.Event) {
	schedule := event.GetStringOr("schedule_name", "unknown")
	m.chimesFired.WithLabelValues(schedule).Inc()
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleProfilesReloaded(event domain.Event) {
	m.profileReloads.Inc()
}

// ResetActiveSensors clears the per-kind active gauge (called when the
// sensor manager is torn down)
func (m *MetricsService) ResetActiveSensors() {
	m.mu.Lock()
	for kind := range m.activeSensors {
		m.sensorsActive.WithLabelValues(kind).Set(0)
	}
	m.activeSensors = make(map[string]int)
	m.mu.Unlock()
}
