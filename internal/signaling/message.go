package signaling

import "encoding/json"

// Message is the wire envelope for every websocket frame exchanged with the
// relay, in both directions. Which fields are populated depends on Type.
type Message struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`

	// ID identifies a peer: the joiner itself in a room-joined ack, the
	// arriving peer in user-joined, the departing peer in user-left.
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	// To is set by the sender of a directed message, From is stamped by the
	// relay on delivery. The relay never infers routing from room membership.
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`

	// Peers lists the members already present, sent in a room-joined ack.
	Peers []PeerInfo `json:"peers,omitempty"`

	// Offer and Answer carry a JSON session description, Candidate a JSON
	// ICE candidate. Kept opaque so browser and Go clients interoperate.
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Reason carries the error text of a room-error message.
	Reason string `json:"message,omitempty"`

	// client is the connection the message arrived on. Set by the read pump,
	// used only inside the hub, never serialized.
	client *Client `json:"-"`
}

// PeerInfo describes one existing room member in a room-joined ack.
type PeerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message type constants, client to server.
const (
	TypeJoinRoom     = "join-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// Message type constants, server to client.
const (
	TypeRoomJoined = "room-joined"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypeRoomError  = "room-error"
)
