package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	stationFetch  *prometheus.HistogramVec
	staleSearches prometheus.Counter
	bookings      prometheus.Counter
	hubClients    prometheus.Gauge
}

// New registers the collectors on reg. If reg is nil, the default registerer is used.
// Collectors registered earlier are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_notifications_total",
			Help: "Notifications emitted to drivers by kind",
		}, []string{"kind"}),
		stationFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "station_directory_request_seconds",
			Help:    "Latency of station directory requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "success"}),
		staleSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "station_search_stale_total",
			Help: "Station search responses discarded because a newer search committed first",
		}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_bookings_created_total",
			Help: "Bookings persisted from reservation maps",
		}),
		hubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_hub_clients",
			Help: "Connected notification websocket clients",
		}),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.stationFetch, err = register(reg, m.stationFetch); err != nil {
		return nil, err
	}
	if m.staleSearches, err = register(reg, m.staleSearches); err != nil {
		return nil, err
	}
	if m.bookings, err = register(reg, m.bookings); err != nil {
		return nil, err
	}
	if m.hubClients, err = register(reg, m.hubClients); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveOperation counts one reservation operation.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveNotification counts one toast.
func (m *Metrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

// ObserveStationFetch records a directory request.
func (m *Metrics) ObserveStationFetch(endpoint string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.stationFetch.WithLabelValues(endpoint, strconv.FormatBool(success)).Observe(d.Seconds())
}

// StaleSearchDiscarded counts a dropped out-of-order search response.
func (m *Metrics) StaleSearchDiscarded() {
	if m == nil {
		return
	}
	m.staleSearches.Inc()
}

// BookingsCreated adds n persisted bookings.
func (m *Metrics) BookingsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bookings.Add(float64(n))
}

// SetHubClients reports the number of websocket subscribers.
func (m *Metrics) SetHubClients(n int) {
	if m == nil {
		return
	}
	m.hubClients.Set(float64(n))
}
