package call

import (
	"encoding/json"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/ShounakMahata18/video-call/internal/config"
	"github.com/ShounakMahata18/video-call/internal/logging"
	"github.com/ShounakMahata18/video-call/internal/media"
)

// LinkEventKind enumerates the events a peer link reports back to its
// session.
type LinkEventKind int

const (
	// LinkCandidate carries a locally gathered ICE candidate to relay.
	LinkCandidate LinkEventKind = iota

	// LinkConnected means the media path is established.
	LinkConnected

	// LinkFailed means connectivity establishment failed.
	LinkFailed
)

type LinkEvent struct {
	Kind      LinkEventKind
	Candidate json.RawMessage
}

// PeerLink is the session's handle on one peer connection. Descriptions and
// candidates stay as raw JSON so the state machine never depends on the
// WebRTC implementation, and a fake link can drive it in tests.
type PeerLink interface {
	// Offer creates and applies the local offer and returns it.
	Offer() (json.RawMessage, error)

	// Answer applies the remote offer, creates and applies the local
	// answer, and returns it.
	Answer(offer json.RawMessage) (json.RawMessage, error)

	// AcceptAnswer applies the remote answer.
	AcceptAnswer(answer json.RawMessage) error

	// AddCandidate applies a remote ICE candidate. The caller guarantees a
	// remote description has been applied first.
	AddCandidate(candidate json.RawMessage) error

	// Events reports candidates and connectivity changes.
	Events() <-chan LinkEvent

	Close() error
}

// LinkFactory builds a fresh peer link for one negotiation session, so state
// from a previous peer can never leak into a new negotiation.
type LinkFactory func() (PeerLink, error)

type pionLink struct {
	pc     *pion.PeerConnection
	events chan LinkEvent

	closeOnce sync.Once
}

// NewPeerLink builds a pion-backed peer link with the local tracks attached
// and remote tracks routed to the media manager.
func NewPeerLink(cfg *config.Config, local *media.LocalMedia, mgr *media.Manager) (PeerLink, error) {
	se := pion.SettingEngine{
		LoggerFactory: logging.NewPionFactory(slog.Default()),
	}
	api := pion.NewAPI(pion.WithSettingEngine(se))

	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}
	if turn := cfg.GetTURNServers(); turn != nil {
		user, pass := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if cfg.ForceRelay {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	l := &pionLink{
		pc:     pc,
		events: make(chan LinkEvent, 64),
	}

	for _, track := range local.Tracks() {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, NewError("add track", err)
		}
		go drainRTCP(sender)
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		l.push(LinkEvent{Kind: LinkCandidate, Candidate: raw})
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		mgr.HandleRemoteTrack(track, pc)
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		switch state {
		case pion.PeerConnectionStateConnected:
			local.Start()
			l.push(LinkEvent{Kind: LinkConnected})
		case pion.PeerConnectionStateFailed:
			l.push(LinkEvent{Kind: LinkFailed})
		}
	})

	return l, nil
}

// push never blocks a pion callback; a session that stopped draining events
// is on its way down and the loss is harmless.
func (l *pionLink) push(ev LinkEvent) {
	select {
	case l.events <- ev:
	default:
	}
}

func (l *pionLink) Offer() (json.RawMessage, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, NewError("create offer", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, NewError("set local description", err)
	}
	return json.Marshal(l.pc.LocalDescription())
}

func (l *pionLink) Answer(offer json.RawMessage) (json.RawMessage, error) {
	var remote pion.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, NewError("parse offer", err)
	}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return nil, NewError("set remote description", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, NewError("create answer", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, NewError("set local description", err)
	}
	return json.Marshal(l.pc.LocalDescription())
}

func (l *pionLink) AcceptAnswer(answer json.RawMessage) error {
	var remote pion.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return NewError("parse answer", err)
	}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return NewError("set remote description", err)
	}
	return nil
}

func (l *pionLink) AddCandidate(candidate json.RawMessage) error {
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &ice); err != nil {
		return NewError("parse ICE candidate", err)
	}
	if err := l.pc.AddICECandidate(ice); err != nil {
		return NewError("add ICE candidate", err)
	}
	return nil
}

func (l *pionLink) Events() <-chan LinkEvent {
	return l.events
}

func (l *pionLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.pc.Close()
	})
	return err
}

// drainRTCP reads and discards sender reports so interceptors keep running.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
