package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ShounakMahata18/video-call/internal/metrics"
	"github.com/ShounakMahata18/video-call/internal/signaling"
)

// Configure the websocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The relay performs no authorization; browser deployments should pin
	// this to the frontend's origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMux wires the relay's HTTP surface: room creation, the websocket
// endpoint, health and metrics.
func NewMux(hub *signaling.Hub, mtr *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("POST /create-room", createRoomHandler(hub))
	mux.HandleFunc("GET /ws", ServeWs(hub))
	mux.Handle("GET /metrics", mtr.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// createRoomHandler allocates a fresh room id. No request body required.
func createRoomHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := hub.CreateRoom()
		if err != nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"roomId": roomID})
	}
}

// ServeWs upgrades the connection, assigns it a fresh connection id and hands
// it to the hub. An optional name query parameter is kept as opaque caller
// identity.
func ServeWs(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err)
			return
		}

		client := &signaling.Client{
			Hub:  hub,
			Conn: conn,
			ID:   uuid.NewString(),
			Name: r.URL.Query().Get("name"),
			Send: make(chan *signaling.Message, 256),
		}

		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
