package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes bridge activity as Prometheus metrics. It
// implements halo.Observer for the transport and is also fed by the
// synchronizer.
type Collector struct {
	framesReceived  prometheus.Counter
	framesSent      prometheus.Counter
	decodeFailures  prometheus.Counter
	reconnects      prometheus.Counter
	connected       prometheus.Gauge
	serviceCalls    *prometheus.CounterVec
	wheelCommits    prometheus.Counter
	buttonPresses   prometheus.Counter
	batteryCapacity prometheus.Gauge
}

func NewCollector() *Collector {
	return &Collector{
		framesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "halo_frames_received_total",
			Help: "Inbound WebSocket frames received from the Halo",
		}),
		framesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "halo_frames_sent_total",
			Help: "Outbound WebSocket frames sent to the Halo",
		}),
		decodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "halo_decode_failures_total",
			Help: "Inbound frames dropped because they could not be decoded",
		}),
		reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "halo_reconnect_attempts_total",
			Help: "Reconnection attempts made by the transport loop",
		}),
		connected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "halo_connected",
			Help: "Whether a Halo session is currently established",
		}),
		serviceCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "halo_service_calls_total",
			Help: "Home Assistant service calls triggered by Halo gestures",
		}, []string{"domain", "service"}),
		wheelCommits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "halo_wheel_commits_total",
			Help: "Committed wheel gestures",
		}),
		buttonPresses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "halo_button_presses_total",
			Help: "Button press-and-release events acted on",
		}),
		batteryCapacity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "halo_battery_capacity_percent",
			Help: "Battery capacity last reported by the Halo",
		}),
	}
}

func (c *Collector) FrameReceived() { c.framesReceived.Inc() }

func (c *Collector) FrameSent() { c.framesSent.Inc() }

func (c *Collector) DecodeFailure() { c.decodeFailures.Inc() }

func (c *Collector) Reconnect() { c.reconnects.Inc() }

func (c *Collector) ConnectionState(connected bool) {
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *Collector) ServiceCalled(domain, service string) {
	c.serviceCalls.WithLabelValues(domain, service).Inc()
}

func (c *Collector) WheelCommitted() { c.wheelCommits.Inc() }

func (c *Collector) ButtonPressed() { c.buttonPresses.Inc() }

func (c *Collector) BatteryCapacity(percent int) {
	c.batteryCapacity.Set(float64(percent))
}
