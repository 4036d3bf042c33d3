package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShounakMahata18/video-call/internal/metrics"
	"github.com/ShounakMahata18/video-call/internal/signaling"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mtr := metrics.New()
	hub := signaling.NewHub(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		mtr,
		signaling.HubOptions{EnforceSameRoom: true},
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	ts := httptest.NewServer(NewMux(hub, mtr))
	t.Cleanup(ts.Close)
	return ts
}

func createRoom(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp, err := http.Post(ts.URL+"/create-room", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /create-room: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /create-room status %d", resp.StatusCode)
	}

	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode create-room response: %v", err)
	}
	return body.RoomID
}

func dialWS(t *testing.T, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if name != "" {
		url += "?name=" + name
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *signaling.Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return &msg
}

func sendMessage(t *testing.T, conn *websocket.Conn, msg *signaling.Message) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
}

func TestCreateRoomReturnsFreshID(t *testing.T) {
	ts := newTestServer(t)

	id := createRoom(t, ts)
	if len(id) != signaling.DefaultRoomIDLength {
		t.Fatalf("room id %q, want %d characters", id, signaling.DefaultRoomIDLength)
	}
	if other := createRoom(t, ts); other == id {
		t.Fatalf("two create-room calls returned the same id %q", id)
	}
}

func TestMetricsExposition(t *testing.T) {
	ts := newTestServer(t)
	createRoom(t, ts)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "videocall_rooms_created_total 1") {
		t.Fatalf("metrics output missing rooms_created counter:\n%s", body)
	}
}

func TestJoinNeverCreatedRoom(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts, "")

	sendMessage(t, conn, &signaling.Message{Type: signaling.TypeJoinRoom, RoomID: "ZZZZZZ"})

	msg := readMessage(t, conn)
	if msg.Type != signaling.TypeRoomError {
		t.Fatalf("got %q, want room-error", msg.Type)
	}
}

// TestEndToEndSignaling walks the full happy path: create, both sides join,
// offer/answer/candidate relay with from-stamping, then departure
// notification and room deletion.
func TestEndToEndSignaling(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	connA := dialWS(t, ts, "alice")
	sendMessage(t, connA, &signaling.Message{Type: signaling.TypeJoinRoom, RoomID: roomID})
	ackA := readMessage(t, connA)
	if ackA.Type != signaling.TypeRoomJoined || ackA.ID == "" {
		t.Fatalf("ackA=%+v, want room-joined with connection id", ackA)
	}

	connB := dialWS(t, ts, "bob")
	sendMessage(t, connB, &signaling.Message{Type: signaling.TypeJoinRoom, RoomID: roomID})
	ackB := readMessage(t, connB)
	if ackB.Type != signaling.TypeRoomJoined {
		t.Fatalf("ackB=%+v, want room-joined", ackB)
	}
	if len(ackB.Peers) != 1 || ackB.Peers[0].ID != ackA.ID || ackB.Peers[0].Name != "alice" {
		t.Fatalf("b's peer list %+v, want alice's connection", ackB.Peers)
	}

	joined := readMessage(t, connA)
	if joined.Type != signaling.TypeUserJoined || joined.ID != ackB.ID || joined.Name != "bob" {
		t.Fatalf("a got %+v, want user-joined for bob", joined)
	}

	// Offer from A, answer from B, candidate from B.
	sendMessage(t, connA, &signaling.Message{
		Type:  signaling.TypeOffer,
		To:    ackB.ID,
		Offer: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})
	offer := readMessage(t, connB)
	if offer.Type != signaling.TypeOffer || offer.From != ackA.ID {
		t.Fatalf("b got %+v, want offer from a", offer)
	}

	sendMessage(t, connB, &signaling.Message{
		Type:   signaling.TypeAnswer,
		To:     ackA.ID,
		Answer: json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	})
	answer := readMessage(t, connA)
	if answer.Type != signaling.TypeAnswer || answer.From != ackB.ID {
		t.Fatalf("a got %+v, want answer from b", answer)
	}

	sendMessage(t, connB, &signaling.Message{
		Type:      signaling.TypeICECandidate,
		To:        ackA.ID,
		Candidate: json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`),
	})
	cand := readMessage(t, connA)
	if cand.Type != signaling.TypeICECandidate || cand.From != ackB.ID {
		t.Fatalf("a got %+v, want ice-candidate from b", cand)
	}

	// B hangs up; A is told.
	connB.Close()
	left := readMessage(t, connA)
	if left.Type != signaling.TypeUserLeft || left.ID != ackB.ID {
		t.Fatalf("a got %+v, want user-left for b", left)
	}

	// A hangs up too; the emptied room must be gone. A probe that lands
	// before the disconnect is processed can still join, so use a fresh
	// connection per attempt.
	connA.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		probe := dialWS(t, ts, "")
		sendMessage(t, probe, &signaling.Message{Type: signaling.TypeJoinRoom, RoomID: roomID})
		msg := readMessage(t, probe)
		probe.Close()
		if msg.Type == signaling.TypeRoomError {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room %s still joinable after both members left", roomID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
