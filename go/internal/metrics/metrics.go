// Package metrics exposes engine, persister and transport activity as
// Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livescore"

// Prometheus implements gateway.Metrics, persist.Recorder and ws.Recorder.
type Prometheus struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	rooms         prometheus.Gauge
	sessions      prometheus.Gauge
	expirations   *prometheus.CounterVec
	ticks         prometheus.Counter

	persistOps      *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	persistParked   prometheus.Gauge

	connections  prometheus.Gauge
	slowClosures prometheus.Counter
}

func New() *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events handled, by event and outcome.",
		}, []string{"event", "outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time to handle one inbound event.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"event"}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Live rooms in the registry.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Connected endpoints.",
		}),
		expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_expirations_total",
			Help:      "Rooms expired, by reason.",
		}, []string{"reason"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_ticks_total",
			Help:      "timer_tick broadcasts sent.",
		}),
		persistOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_ops_total",
			Help:      "Durable writes, by op and status.",
		}, []string{"op", "status"}),
		persistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Time for one durable write including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		persistParked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persist_parked",
			Help:      "Failed durable writes waiting for the sweep retry.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
		slowClosures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_slow_consumer_closures_total",
			Help:      "Connections closed because their send buffer was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.eventDuration, m.rooms, m.sessions, m.expirations, m.ticks,
		m.persistOps, m.persistDuration, m.persistParked,
		m.connections, m.slowClosures,
	)
	return m
}

// Handler serves the registry at /metrics.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Prometheus) ObserveEvent(event, outcome string, d time.Duration) {
	m.events.WithLabelValues(event, outcome).Inc()
	m.eventDuration.WithLabelValues(event).Observe(d.Seconds())
}

func (m *Prometheus) SetRooms(n int)    { m.rooms.Set(float64(n)) }
func (m *Prometheus) SetSessions(n int) { m.sessions.Set(float64(n)) }

func (m *Prometheus) RoomExpired(reason string) { m.expirations.WithLabelValues(reason).Inc() }

func (m *Prometheus) TickBroadcast() { m.ticks.Inc() }

func (m *Prometheus) ObservePersist(op string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.persistOps.WithLabelValues(op, status).Inc()
	m.persistDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Prometheus) SetPersistParked(n int) { m.persistParked.Set(float64(n)) }

func (m *Prometheus) SetConnections(n int) { m.connections.Set(float64(n)) }

func (m *Prometheus) SlowConsumerClosed() { m.slowClosures.Inc() }
