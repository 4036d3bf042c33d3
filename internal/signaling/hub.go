package signaling

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShounakMahata18/video-call/internal/metrics"
)

// HubOptions tunes the hub. The zero value is usable.
type HubOptions struct {
	// RoomIDLength is the length of generated room ids.
	RoomIDLength int

	// RoomTTL, when positive, evicts rooms that were created but never
	// joined after this long. Zero disables the sweep.
	RoomTTL time.Duration

	// EnforceSameRoom drops directed messages whose target does not share a
	// room with the sender.
	EnforceSameRoom bool
}

// Hub is the relay's single-threaded actor. It owns the room registry and the
// connection table; every mutation happens on the Run goroutine, so no two
// join/leave sequences ever interleave.
type Hub struct {
	log  *slog.Logger
	mtr  *metrics.Metrics
	opts HubOptions

	registry *Registry
	clients  map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan *Message
	createRoom chan chan createRoomReply
}

type createRoomReply struct {
	id  string
	err error
}

func NewHub(log *slog.Logger, mtr *metrics.Metrics, opts HubOptions) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		mtr:        mtr,
		opts:       opts,
		registry:   NewRegistry(opts.RoomIDLength),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Message),
		createRoom: make(chan chan createRoomReply),
	}
}

// Register hands a new connection to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// CreateRoom allocates a fresh room id. Safe to call from any goroutine while
// the hub is running.
func (h *Hub) CreateRoom() (string, error) {
	reply := make(chan createRoomReply, 1)
	h.createRoom <- reply
	r := <-reply
	return r.id, r.err
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	var sweep <-chan time.Time
	if h.opts.RoomTTL > 0 {
		ticker := time.NewTicker(h.opts.RoomTTL)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.mtr.ClientsConnected.Inc()
			h.log.Info("client connected", "id", client.ID, "name", client.Name)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.inbound:
			h.handleMessage(msg)

		case reply := <-h.createRoom:
			id, err := h.registry.CreateRoom()
			if err == nil {
				h.mtr.RoomsCreated.Inc()
				h.mtr.RoomsActive.Set(float64(h.registry.Len()))
				h.log.Info("room created", "room", id)
			}
			reply <- createRoomReply{id: id, err: err}

		case <-sweep:
			for _, id := range h.registry.SweepEmpty(h.opts.RoomTTL) {
				h.log.Info("empty room evicted", "room", id)
			}
			h.mtr.RoomsActive.Set(float64(h.registry.Len()))
		}
	}
}

func (h *Hub) handleMessage(msg *Message) {
	c := msg.client
	if c == nil {
		return
	}

	switch msg.Type {
	case TypeJoinRoom:
		h.handleJoin(c, msg.RoomID)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relayDirected(c, msg)

	default:
		h.log.Warn("unknown message type", "type", msg.Type, "id", c.ID)
	}
}

func (h *Hub) handleJoin(c *Client, roomID string) {
	if err := h.registry.Join(roomID, c.ID); err != nil {
		h.log.Info("join rejected", "room", roomID, "id", c.ID)
		h.sendError(c, "Room does not exist.")
		return
	}

	var peers []PeerInfo
	for _, id := range h.registry.MembersOf(roomID) {
		if id == c.ID {
			continue
		}
		peer := PeerInfo{ID: id}
		if other, ok := h.clients[id]; ok {
			peer.Name = other.Name
		}
		peers = append(peers, peer)
	}

	h.mtr.RoomJoins.Inc()
	h.log.Info("client joined room", "room", roomID, "id", c.ID)

	// Ack carries the joiner's own connection id and the current member
	// list; both feed the client's offerer election.
	h.send(c, &Message{Type: TypeRoomJoined, ID: c.ID, RoomID: roomID, Peers: peers})
	h.broadcast(roomID, c.ID, &Message{Type: TypeUserJoined, ID: c.ID, Name: c.Name})
}

func (h *Hub) relayDirected(c *Client, msg *Message) {
	target, ok := h.clients[msg.To]
	if !ok {
		h.log.Info("relay dropped, unknown target", "type", msg.Type, "from", c.ID, "to", msg.To)
		h.sendError(c, "Unknown peer.")
		return
	}
	if h.opts.EnforceSameRoom && !h.registry.SharesRoom(c.ID, msg.To) {
		h.log.Warn("relay dropped, peers share no room", "type", msg.Type, "from", c.ID, "to", msg.To)
		h.sendError(c, "Peer is not in your room.")
		return
	}

	h.mtr.SignalsRelayed.WithLabelValues(msg.Type).Inc()
	h.send(target, &Message{
		Type:      msg.Type,
		From:      c.ID,
		Offer:     msg.Offer,
		Answer:    msg.Answer,
		Candidate: msg.Candidate,
	})
}

// removeClient is the disconnect path: notify remaining members of every room
// the connection was in, then prune the registry. Idempotent.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	for _, roomID := range h.registry.RoomsOf(c.ID) {
		h.broadcast(roomID, c.ID, &Message{Type: TypeUserLeft, ID: c.ID})
	}
	h.registry.Leave(c.ID)

	delete(h.clients, c.ID)
	close(c.Send)

	h.mtr.ClientsConnected.Dec()
	h.mtr.RoomsActive.Set(float64(h.registry.Len()))
	h.log.Info("client disconnected", "id", c.ID)
}

// broadcast queues msg for every member of roomID except the excluded id.
func (h *Hub) broadcast(roomID, except string, msg *Message) {
	for _, id := range h.registry.MembersOf(roomID) {
		if id == except {
			continue
		}
		if member, ok := h.clients[id]; ok {
			h.send(member, msg)
		}
	}
}

func (h *Hub) sendError(c *Client, reason string) {
	h.mtr.RoomErrors.Inc()
	h.send(c, &Message{Type: TypeRoomError, Reason: reason})
}

// send queues msg without ever blocking the hub loop. A client whose send
// buffer is full has a stalled write pump; dropping is the lesser evil.
func (h *Hub) send(c *Client, msg *Message) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("send buffer full, dropping message", "id", c.ID, "type", msg.Type)
	}
}
