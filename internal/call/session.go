package call

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ShounakMahata18/video-call/internal/signaling"
)

// State is the negotiation state of a call session.
type State int

const (
	StateIdle State = iota
	StateLocalMediaReady
	StateAwaitingPeer
	StateOffering
	StateAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocalMediaReady:
		return "local-media-ready"
	case StateAwaitingPeer:
		return "awaiting-peer"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	RoomID string
	Relay  Relay

	// NewLink builds a fresh peer link per negotiation session.
	NewLink LinkFactory

	// Timeout bounds one offer/answer attempt. Zero disables the deadline.
	Timeout time.Duration

	Logger *slog.Logger

	// OnState observes state transitions. Called from the session
	// goroutine.
	OnState func(State)

	// OnRemoteGone releases remote media when the peer departs or a
	// negotiation is torn down. Called from the session goroutine.
	OnRemoteGone func()
}

// Session drives the offer/answer/candidate exchange with exactly one remote
// peer. All state lives on the Run goroutine; inbound signaling and link
// events are consumed one at a time, so no locking is needed.
//
// The registry permits rooms with more than two members, but a session only
// ever negotiates with one peer: signaling from additional joiners is logged
// and ignored.
type Session struct {
	cfg SessionConfig
	log *slog.Logger

	state  State
	id     string
	target string

	link       PeerLink
	linkEvents <-chan LinkEvent

	// pendingCandidates holds remote candidates that arrived before the
	// remote description, in arrival order.
	pendingCandidates []json.RawMessage
	remoteDescSet     bool

	timer *time.Timer
}

// NewSession creates a session whose local media has already been acquired
// (the link factory owns the tracks). The session starts in
// StateLocalMediaReady; a capture failure is terminal and never reaches here.
func NewSession(cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:   cfg,
		log:   log.With("room", cfg.RoomID),
		state: StateLocalMediaReady,
	}
}

// Run joins the room and processes events until ctx is cancelled or the
// transport is lost. Protocol errors during the join (unknown room) are
// returned; after that, negotiation failures put the session back into
// StateAwaitingPeer rather than ending it.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	s.cfg.Relay.Send(&signaling.Message{Type: signaling.TypeJoinRoom, RoomID: s.cfg.RoomID})

	for {
		var deadline <-chan time.Time
		if s.timer != nil {
			deadline = s.timer.C
		}

		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-s.cfg.Relay.Incoming():
			if !ok {
				return NewError("signaling", ErrTransportLost)
			}
			if err := s.handleMessage(msg); err != nil {
				return err
			}

		case ev := <-s.linkEvents:
			s.handleLinkEvent(ev)

		case <-deadline:
			s.timer = nil
			s.log.Warn("negotiation timed out", "peer", s.target)
			s.failNegotiation(ErrTimeout)
		}
	}
}

func (s *Session) handleMessage(msg *signaling.Message) error {
	switch msg.Type {
	case signaling.TypeRoomJoined:
		s.id = msg.ID
		s.setState(StateAwaitingPeer)
		if len(msg.Peers) > 0 {
			if len(msg.Peers) > 1 {
				s.log.Warn("room already has multiple peers, negotiating with the first",
					"peers", len(msg.Peers))
			}
			s.electOfferer(msg.Peers[0].ID)
		}

	case signaling.TypeRoomError:
		if s.state == StateLocalMediaReady {
			// Join rejected; the session never left its pre-join state.
			return WrapError("join room", ErrRoomNotFound, msg.Reason)
		}
		s.log.Warn("relay reported error", "message", msg.Reason)

	case signaling.TypeUserJoined:
		if s.target != "" {
			s.log.Info("ignoring extra joiner, already negotiating", "id", msg.ID)
			return nil
		}
		if s.state != StateAwaitingPeer {
			return nil
		}
		s.electOfferer(msg.ID)

	case signaling.TypeOffer:
		s.handleOffer(msg)

	case signaling.TypeAnswer:
		s.handleAnswer(msg)

	case signaling.TypeICECandidate:
		s.handleCandidate(msg)

	case signaling.TypeUserLeft:
		if msg.ID != s.target {
			return nil
		}
		s.log.Info("peer left", "id", msg.ID)
		s.teardownNegotiation()
		s.setState(StateAwaitingPeer)

	default:
		s.log.Debug("ignoring unknown message", "type", msg.Type)
	}
	return nil
}

// electOfferer applies the glare tie-break: the lexicographically smaller
// connection id offers, the other side answers. Both sides evaluate the same
// rule, so exactly one offers regardless of who observed whom first.
func (s *Session) electOfferer(peerID string) {
	s.target = peerID
	if s.id < peerID {
		s.beginOffer()
		return
	}
	// The peer offers; bound the wait for its offer.
	s.log.Info("awaiting offer from peer", "peer", peerID)
	s.armTimer()
}

func (s *Session) beginOffer() {
	link, err := s.cfg.NewLink()
	if err != nil {
		s.log.Error("peer link setup failed", "err", err)
		s.failNegotiation(ErrNegotiationFailed)
		return
	}
	s.link = link
	s.linkEvents = link.Events()

	offer, err := link.Offer()
	if err != nil {
		s.log.Error("offer construction failed", "err", err)
		s.failNegotiation(ErrNegotiationFailed)
		return
	}

	s.setState(StateOffering)
	s.armTimer()
	s.cfg.Relay.Send(&signaling.Message{
		Type:  signaling.TypeOffer,
		To:    s.target,
		Offer: offer,
	})
	s.log.Info("offer sent", "peer", s.target)
}

func (s *Session) handleOffer(msg *signaling.Message) {
	if s.target != "" && msg.From != s.target {
		s.log.Info("ignoring offer from non-target peer", "from", msg.From)
		return
	}

	switch s.state {
	case StateAwaitingPeer:
		s.target = msg.From
	case StateOffering:
		// Glare: the tie-break already made us the offerer, so an offer
		// from the answering side violates the protocol.
		s.log.Warn("glare detected, discarding offer from answering side", "from", msg.From)
		return
	default:
		s.log.Debug("ignoring offer", "state", s.state.String())
		return
	}

	if s.link == nil {
		link, err := s.cfg.NewLink()
		if err != nil {
			s.log.Error("peer link setup failed", "err", err)
			s.failNegotiation(ErrNegotiationFailed)
			return
		}
		s.link = link
		s.linkEvents = link.Events()
	}

	s.setState(StateAnswering)
	answer, err := s.link.Answer(msg.Offer)
	if err != nil {
		s.log.Error("answer construction failed", "err", err)
		s.failNegotiation(ErrNegotiationFailed)
		return
	}

	// The remote description is now applied; flush candidates that beat the
	// offer here, in arrival order.
	s.remoteDescSet = true
	s.flushCandidates()

	s.cfg.Relay.Send(&signaling.Message{
		Type:   signaling.TypeAnswer,
		To:     msg.From,
		Answer: answer,
	})
	s.log.Info("answer sent", "peer", msg.From)

	s.disarmTimer()
	s.setState(StateConnected)
}

func (s *Session) handleAnswer(msg *signaling.Message) {
	if s.state != StateOffering || msg.From != s.target {
		s.log.Debug("ignoring answer", "state", s.state.String(), "from", msg.From)
		return
	}

	if err := s.link.AcceptAnswer(msg.Answer); err != nil {
		s.log.Error("applying answer failed", "err", err)
		s.failNegotiation(ErrNegotiationFailed)
		return
	}

	s.remoteDescSet = true
	s.flushCandidates()

	s.disarmTimer()
	s.setState(StateConnected)
}

func (s *Session) handleCandidate(msg *signaling.Message) {
	if msg.From != s.target {
		s.log.Debug("ignoring candidate from non-target peer", "from", msg.From)
		return
	}

	// A candidate must never be applied before the remote description it
	// references; queue until then.
	if !s.remoteDescSet || s.link == nil {
		s.pendingCandidates = append(s.pendingCandidates, msg.Candidate)
		return
	}

	if err := s.link.AddCandidate(msg.Candidate); err != nil {
		s.log.Warn("candidate rejected", "err", err)
	}
}

func (s *Session) flushCandidates() {
	for _, candidate := range s.pendingCandidates {
		if err := s.link.AddCandidate(candidate); err != nil {
			s.log.Warn("queued candidate rejected", "err", err)
		}
	}
	s.pendingCandidates = nil
}

func (s *Session) handleLinkEvent(ev LinkEvent) {
	switch ev.Kind {
	case LinkCandidate:
		if s.target == "" {
			return
		}
		s.cfg.Relay.Send(&signaling.Message{
			Type:      signaling.TypeICECandidate,
			To:        s.target,
			Candidate: ev.Candidate,
		})

	case LinkConnected:
		s.log.Info("media path established", "peer", s.target)

	case LinkFailed:
		s.log.Warn("connectivity failed", "peer", s.target)
		s.failNegotiation(ErrNegotiationFailed)
	}
}

// failNegotiation abandons the current attempt and returns to
// StateAwaitingPeer. Recovery is user-initiated; there is no automatic retry.
func (s *Session) failNegotiation(cause error) {
	s.log.Warn("negotiation abandoned", "peer", s.target, "cause", cause)
	s.teardownNegotiation()
	s.setState(StateAwaitingPeer)
}

// teardownNegotiation discards the per-peer negotiation session: link,
// candidate queue, target and deadline. Remote media is released through
// OnRemoteGone.
func (s *Session) teardownNegotiation() {
	s.disarmTimer()
	if s.link != nil {
		s.link.Close()
		s.link = nil
		s.linkEvents = nil
	}
	s.target = ""
	s.pendingCandidates = nil
	s.remoteDescSet = false

	if s.cfg.OnRemoteGone != nil {
		s.cfg.OnRemoteGone()
	}
}

func (s *Session) shutdown() {
	s.teardownNegotiation()
	s.setState(StateClosed)
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.log.Debug("state transition", "from", s.state.String(), "to", state.String())
	s.state = state
	if s.cfg.OnState != nil {
		s.cfg.OnState(state)
	}
}

func (s *Session) armTimer() {
	if s.cfg.Timeout <= 0 {
		return
	}
	s.disarmTimer()
	s.timer = time.NewTimer(s.cfg.Timeout)
}

func (s *Session) disarmTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
