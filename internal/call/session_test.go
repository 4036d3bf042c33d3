package call

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ShounakMahata18/video-call/internal/signaling"
)

// fakeRelay feeds a session from the test goroutine and captures everything
// the session sends.
type fakeRelay struct {
	in  chan *signaling.Message
	out chan *signaling.Message
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		in:  make(chan *signaling.Message, 16),
		out: make(chan *signaling.Message, 16),
	}
}

func (r *fakeRelay) Send(msg *signaling.Message)         { r.out <- msg }
func (r *fakeRelay) Incoming() <-chan *signaling.Message { return r.in }

// fakeLink records every description and candidate it is handed, in order.
type fakeLink struct {
	mu     sync.Mutex
	ops    []string
	closed bool
	events chan LinkEvent
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan LinkEvent, 16)}
}

func (l *fakeLink) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *fakeLink) Offer() (json.RawMessage, error) {
	l.record("offer")
	return json.RawMessage(`{"type":"offer","sdp":"local"}`), nil
}

func (l *fakeLink) Answer(offer json.RawMessage) (json.RawMessage, error) {
	l.record("answer")
	return json.RawMessage(`{"type":"answer","sdp":"local"}`), nil
}

func (l *fakeLink) AcceptAnswer(answer json.RawMessage) error {
	l.record("accept-answer")
	return nil
}

func (l *fakeLink) AddCandidate(candidate json.RawMessage) error {
	l.record("candidate:" + string(candidate))
	return nil
}

func (l *fakeLink) Events() <-chan LinkEvent { return l.events }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) snapshot() ([]string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...), l.closed
}

type harness struct {
	relay  *fakeRelay
	states chan State
	gone   chan struct{}
	done   chan error
	cancel context.CancelFunc

	mu    sync.Mutex
	links []*fakeLink
}

func startSession(t *testing.T, timeout time.Duration) *harness {
	t.Helper()

	h := &harness{
		relay:  newFakeRelay(),
		states: make(chan State, 32),
		gone:   make(chan struct{}, 8),
		done:   make(chan error, 1),
	}

	sess := NewSession(SessionConfig{
		RoomID: "ABC123",
		Relay:  h.relay,
		NewLink: func() (PeerLink, error) {
			link := newFakeLink()
			h.mu.Lock()
			h.links = append(h.links, link)
			h.mu.Unlock()
			return link, nil
		},
		Timeout:      timeout,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnState:      func(st State) { h.states <- st },
		OnRemoteGone: func() { h.gone <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- sess.Run(ctx); close(h.done) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})

	// Every session opens by joining its room.
	if msg := h.expectSend(t); msg.Type != signaling.TypeJoinRoom || msg.RoomID != "ABC123" {
		t.Fatalf("first message %+v, want join-room for ABC123", msg)
	}
	return h
}

func (h *harness) deliver(msg *signaling.Message) { h.relay.in <- msg }

func (h *harness) expectSend(t *testing.T) *signaling.Message {
	t.Helper()
	select {
	case msg := <-h.relay.out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func (h *harness) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case msg := <-h.relay.out:
		t.Fatalf("unexpected outbound message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) expectState(t *testing.T, want State) {
	t.Helper()
	select {
	case got := <-h.states:
		if got != want {
			t.Fatalf("state %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %s", want)
	}
}

func (h *harness) link(t *testing.T, i int) *fakeLink {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.links) {
		t.Fatalf("link %d not created, have %d", i, len(h.links))
	}
	return h.links[i]
}

func (h *harness) joinAsOfferer(t *testing.T) {
	t.Helper()
	h.deliver(&signaling.Message{
		Type:  signaling.TypeRoomJoined,
		ID:    "aaa",
		Peers: []signaling.PeerInfo{{ID: "bbb", Name: "peer"}},
	})
	h.expectState(t, StateAwaitingPeer)
	h.expectState(t, StateOffering)
}

func TestSmallerConnectionIDOffers(t *testing.T) {
	h := startSession(t, 0)
	h.joinAsOfferer(t)

	offer := h.expectSend(t)
	if offer.Type != signaling.TypeOffer || offer.To != "bbb" {
		t.Fatalf("got %+v, want offer addressed to bbb", offer)
	}

	h.deliver(&signaling.Message{
		Type:   signaling.TypeAnswer,
		From:   "bbb",
		Answer: json.RawMessage(`{"type":"answer","sdp":"remote"}`),
	})
	h.expectState(t, StateConnected)

	ops, _ := h.link(t, 0).snapshot()
	if len(ops) != 2 || ops[0] != "offer" || ops[1] != "accept-answer" {
		t.Fatalf("link ops %v, want [offer accept-answer]", ops)
	}
}

func TestLargerConnectionIDAnswers(t *testing.T) {
	h := startSession(t, 0)

	h.deliver(&signaling.Message{Type: signaling.TypeRoomJoined, ID: "zzz"})
	h.expectState(t, StateAwaitingPeer)

	h.deliver(&signaling.Message{Type: signaling.TypeUserJoined, ID: "aaa", Name: "peer"})
	h.expectSilence(t) // the smaller id offers, not us

	h.deliver(&signaling.Message{
		Type:  signaling.TypeOffer,
		From:  "aaa",
		Offer: json.RawMessage(`{"type":"offer","sdp":"remote"}`),
	})
	h.expectState(t, StateAnswering)

	answer := h.expectSend(t)
	if answer.Type != signaling.TypeAnswer || answer.To != "aaa" {
		t.Fatalf("got %+v, want answer addressed to aaa", answer)
	}
	h.expectState(t, StateConnected)
}

// Candidates that arrive before the remote description must be held back and
// applied in arrival order once it lands.
func TestEarlyCandidatesFlushedInOrder(t *testing.T) {
	h := startSession(t, 0)

	h.deliver(&signaling.Message{Type: signaling.TypeRoomJoined, ID: "zzz"})
	h.expectState(t, StateAwaitingPeer)
	h.deliver(&signaling.Message{Type: signaling.TypeUserJoined, ID: "aaa"})

	for _, c := range []string{`"c1"`, `"c2"`} {
		h.deliver(&signaling.Message{
			Type:      signaling.TypeICECandidate,
			From:      "aaa",
			Candidate: json.RawMessage(c),
		})
	}

	h.deliver(&signaling.Message{
		Type:  signaling.TypeOffer,
		From:  "aaa",
		Offer: json.RawMessage(`{"type":"offer","sdp":"remote"}`),
	})
	h.expectState(t, StateAnswering)
	h.expectSend(t) // answer
	h.expectState(t, StateConnected)

	// A candidate after the remote description applies immediately.
	h.deliver(&signaling.Message{
		Type:      signaling.TypeICECandidate,
		From:      "aaa",
		Candidate: json.RawMessage(`"c3"`),
	})

	want := []string{"answer", `candidate:"c1"`, `candidate:"c2"`, `candidate:"c3"`}
	deadline := time.Now().Add(2 * time.Second)
	for {
		ops, _ := h.link(t, 0).snapshot()
		if len(ops) == len(want) {
			for i := range want {
				if ops[i] != want[i] {
					t.Fatalf("link ops %v, want %v", ops, want)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("link ops %v, want %v", ops, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPeerLeavingResetsNegotiation(t *testing.T) {
	h := startSession(t, 0)
	h.joinAsOfferer(t)
	h.expectSend(t) // offer
	h.deliver(&signaling.Message{
		Type:   signaling.TypeAnswer,
		From:   "bbb",
		Answer: json.RawMessage(`{"type":"answer","sdp":"remote"}`),
	})
	h.expectState(t, StateConnected)

	h.deliver(&signaling.Message{Type: signaling.TypeUserLeft, ID: "bbb"})
	h.expectState(t, StateAwaitingPeer)

	select {
	case <-h.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("remote media was not released")
	}
	if _, closed := h.link(t, 0).snapshot(); !closed {
		t.Fatal("link survived the peer leaving")
	}

	// A new peer gets a fresh link with none of the old state.
	h.deliver(&signaling.Message{Type: signaling.TypeUserJoined, ID: "ccc"})
	h.expectState(t, StateOffering)
	offer := h.expectSend(t)
	if offer.To != "ccc" {
		t.Fatalf("offer addressed to %q, want ccc", offer.To)
	}
	if ops, _ := h.link(t, 1).snapshot(); len(ops) != 1 || ops[0] != "offer" {
		t.Fatalf("second link ops %v, want [offer]", ops)
	}
}

func TestNegotiationTimeoutAbandonsAttempt(t *testing.T) {
	h := startSession(t, 50*time.Millisecond)
	h.joinAsOfferer(t)
	h.expectSend(t) // offer that will never be answered

	h.expectState(t, StateAwaitingPeer)
	if _, closed := h.link(t, 0).snapshot(); !closed {
		t.Fatal("link survived the negotiation timeout")
	}
}

func TestJoiningUnknownRoomFails(t *testing.T) {
	h := startSession(t, 0)

	h.deliver(&signaling.Message{Type: signaling.TypeRoomError, Reason: "Room does not exist."})

	select {
	case err := <-h.done:
		if !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("err=%v, want ErrRoomNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session kept running after join was rejected")
	}
}

func TestLostTransportEndsSession(t *testing.T) {
	h := startSession(t, 0)
	h.deliver(&signaling.Message{Type: signaling.TypeRoomJoined, ID: "aaa"})
	h.expectState(t, StateAwaitingPeer)

	close(h.relay.in)

	select {
	case err := <-h.done:
		if !errors.Is(err, ErrTransportLost) {
			t.Fatalf("err=%v, want ErrTransportLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session kept running after the transport dropped")
	}
	h.expectState(t, StateClosed)
}

func TestExtraJoinersAreIgnored(t *testing.T) {
	h := startSession(t, 0)
	h.joinAsOfferer(t)
	h.expectSend(t) // offer to bbb

	h.deliver(&signaling.Message{Type: signaling.TypeUserJoined, ID: "ccc"})
	h.expectSilence(t)

	h.deliver(&signaling.Message{
		Type:   signaling.TypeAnswer,
		From:   "bbb",
		Answer: json.RawMessage(`{"type":"answer","sdp":"remote"}`),
	})
	h.expectState(t, StateConnected)
}

// When both sides would offer, the tie-break already decided; an offer
// arriving while we are offering is discarded rather than answered.
func TestGlareOfferDiscarded(t *testing.T) {
	h := startSession(t, 0)
	h.joinAsOfferer(t)
	h.expectSend(t) // our offer

	h.deliver(&signaling.Message{
		Type:  signaling.TypeOffer,
		From:  "bbb",
		Offer: json.RawMessage(`{"type":"offer","sdp":"remote"}`),
	})
	h.expectSilence(t)

	if ops, _ := h.link(t, 0).snapshot(); len(ops) != 1 || ops[0] != "offer" {
		t.Fatalf("link ops %v, want [offer]", ops)
	}
}

func TestLocalCandidatesRelayedToPeer(t *testing.T) {
	h := startSession(t, 0)
	h.joinAsOfferer(t)
	h.expectSend(t) // offer

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`)
	h.link(t, 0).events <- LinkEvent{Kind: LinkCandidate, Candidate: candidate}

	msg := h.expectSend(t)
	if msg.Type != signaling.TypeICECandidate || msg.To != "bbb" {
		t.Fatalf("got %+v, want ice-candidate addressed to bbb", msg)
	}
	if string(msg.Candidate) != string(candidate) {
		t.Fatalf("candidate payload %s, want %s", msg.Candidate, candidate)
	}
}

func TestStateStringsAreStable(t *testing.T) {
	for st, want := range map[State]string{
		StateIdle:            "idle",
		StateLocalMediaReady: "local-media-ready",
		StateAwaitingPeer:    "awaiting-peer",
		StateOffering:        "offering",
		StateAnswering:       "answering",
		StateConnected:       "connected",
		StateClosed:          "closed",
		State(99):            "unknown",
	} {
		if got := st.String(); got != want {
			t.Fatalf("State(%d).String()=%q, want %q", st, got, want)
		}
	}
}
