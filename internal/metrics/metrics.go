package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors. Each instance owns its own
// registry so independent servers (and tests) never clash on registration.
type Metrics struct {
	registry *prometheus.Registry

	RoomsActive      prometheus.Gauge
	ClientsConnected prometheus.Gauge
	RoomsCreated     prometheus.Counter
	RoomJoins        prometheus.Counter
	RoomErrors       prometheus.Counter
	SignalsRelayed   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "videocall_rooms_active",
			Help: "Number of rooms currently live in the registry.",
		}),
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "videocall_clients_connected",
			Help: "Number of websocket connections currently attached.",
		}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "videocall_rooms_created_total",
			Help: "Rooms allocated via the create-room endpoint.",
		}),
		RoomJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "videocall_room_joins_total",
			Help: "Successful room joins.",
		}),
		RoomErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "videocall_room_errors_total",
			Help: "room-error messages sent to clients.",
		}),
		SignalsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videocall_signals_relayed_total",
			Help: "Directed signaling messages relayed, by message type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.RoomsActive,
		m.ClientsConnected,
		m.RoomsCreated,
		m.RoomJoins,
		m.RoomErrors,
		m.SignalsRelayed,
	)
	return m
}

// Handler exposes the collectors in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
