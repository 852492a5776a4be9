package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the registry exposed on the status server's /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// TransportConnected reports the backend channel state.
	// 1 = Up, 0 = Down or Connecting
	TransportConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundlink_transport_connected",
			Help: "Whether the backend channel is up (1) or not (0).",
		},
	)

	// TransportReconnectsTotal counts scheduled reconnect attempts.
	TransportReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groundlink_transport_reconnects_total",
			Help: "Total number of reconnect attempts scheduled after the channel went down.",
		},
	)

	// FramesReceivedTotal counts inbound frames by type.
	FramesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_frames_received_total",
			Help: "Total number of decoded inbound frames.",
		},
		[]string{"type"},
	)

	// FramesDroppedTotal counts frames that never reached their destination.
	FramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_frames_dropped_total",
			Help: "Total number of frames dropped.",
		},
		[]string{"reason"}, // reason: malformed/unrouted/backpressure/down
	)

	// ControlFramesSentTotal counts rc_override frames handed to the channel.
	ControlFramesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_control_frames_sent_total",
			Help: "Total number of manual control frames sent.",
		},
		[]string{"source"},
	)

	// AlertsTotal counts pushed alerts by severity.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_alerts_total",
			Help: "Total number of alerts raised.",
		},
		[]string{"severity"},
	)

	// AlertsVisible is the current length of the alert list.
	AlertsVisible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundlink_alerts_visible",
			Help: "Number of alerts currently visible.",
		},
	)

	// VehiclesRegistered is the number of vehicles in the registry.
	VehiclesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundlink_vehicles_registered",
			Help: "Number of vehicles currently registered.",
		},
	)

	// BackendRequestLatency tracks REST collaborator calls.
	BackendRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groundlink_backend_request_duration_seconds",
			Help:    "Latency of requests to the vehicle backend REST API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TransportConnected,
		TransportReconnectsTotal,
		FramesReceivedTotal,
		FramesDroppedTotal,
		ControlFramesSentTotal,
		AlertsTotal,
		AlertsVisible,
		VehiclesRegistered,
		BackendRequestLatency,
	)
}
