package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the discovery service
type Metrics struct {
	// UDP listener metrics
	DatagramsReceived prometheus.Counter
	PacketsDecoded    prometheus.Counter
	DecodeErrors      *prometheus.CounterVec
	UnknownHeaders    prometheus.Counter
	QueueSize         prometheus.Gauge
	QueueDrops        prometheus.Counter

	// Device registry metrics
	DevicesTracked prometheus.Gauge
	DevicesSeen    prometheus.Counter
	DevicesExpired prometheus.Counter
	Announcements  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// UDP listener metrics
		DatagramsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_datagrams_received_total",
			Help: "Total number of UDP broadcast datagrams received",
		}),
		PacketsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_packets_decoded_total",
			Help: "Total number of datagrams successfully decoded",
		}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "airos_discovery_decode_errors_total",
			Help: "Total number of datagram decode failures",
		}, []string{"reason"}),
		UnknownHeaders: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_unknown_headers_total",
			Help: "Total number of decoded packets with unrecognized header identifiers",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "airos_discovery_queue_size",
			Help: "Current number of datagrams in the processing queue",
		}),
		QueueDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_queue_drops_total",
			Help: "Total number of datagrams dropped because the queue was full",
		}),

		// Device registry metrics
		DevicesTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "airos_discovery_devices_tracked",
			Help: "Current number of devices in the registry",
		}),
		DevicesSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_devices_seen_total",
			Help: "Total number of distinct devices first seen",
		}),
		DevicesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_devices_expired_total",
			Help: "Total number of devices expired from the registry",
		}),
		Announcements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "airos_discovery_announcements_total",
			Help: "Total number of announcements merged into the registry",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "airos_discovery_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airos_discovery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "airos_discovery_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordDatagramReceived increments the datagrams received counter
func (m *Metrics) RecordDatagramReceived() {
	m.DatagramsReceived.Inc()
}

// RecordPacketDecoded increments the decoded packets counter
func (m *Metrics) RecordPacketDecoded() {
	m.PacketsDecoded.Inc()
}

// RecordDecodeError increments the decode errors counter for a failure reason
func (m *Metrics) RecordDecodeError(reason string) {
	m.DecodeErrors.WithLabelValues(reason).Inc()
}

// RecordUnknownHeader increments the unrecognized header counter
func (m *Metrics) RecordUnknownHeader() {
	m.UnknownHeaders.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// RecordQueueDrop increments the dropped datagrams counter
func (m *Metrics) RecordQueueDrop() {
	m.QueueDrops.Inc()
}

// SetDevicesTracked sets the current registry size
func (m *Metrics) SetDevicesTracked(count int) {
	m.DevicesTracked.Set(float64(count))
}

// RecordDeviceSeen increments the distinct devices counter
func (m *Metrics) RecordDeviceSeen() {
	m.DevicesSeen.Inc()
}

// RecordDeviceExpired increments the expired devices counter
func (m *Metrics) RecordDeviceExpired() {
	m.DevicesExpired.Inc()
}

// RecordAnnouncement increments the merged announcements counter
func (m *Metrics) RecordAnnouncement() {
	m.Announcements.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
