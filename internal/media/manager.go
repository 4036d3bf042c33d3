package media

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Manager owns the local capture sources and the remote sink of a call.
// It hands local tracks to the negotiation layer and replaces the remote
// side wholesale whenever a new remote stream arrives.
type Manager struct {
	log       *slog.Logger
	recordDir string

	mu     sync.Mutex
	local  *LocalMedia
	remote *RemoteMedia
}

func NewManager(log *slog.Logger, recordDir string) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log, recordDir: recordDir}
}

// Acquire opens the configured capture sources and returns the local media
// handle. Source failures surface as *Error, distinct from negotiation
// failures; the caller treats them as fatal for the session.
func (m *Manager) Acquire(c Constraints) (*LocalMedia, error) {
	if c.Video == nil && c.Audio == nil {
		return nil, newError("acquire", "", ErrNoSources)
	}

	lm := &LocalMedia{
		Orientation: c.Orientation,
		log:         m.log,
		stop:        make(chan struct{}),
	}

	if c.Video != nil {
		src, err := newVideoSource(c.Video)
		if err != nil {
			return nil, err
		}
		lm.sources = append(lm.sources, src)
		lm.tracks = append(lm.tracks, src.track)
	}

	if c.Audio != nil {
		src, err := newAudioSource(c.Audio)
		if err != nil {
			lm.Stop()
			return nil, err
		}
		lm.sources = append(lm.sources, src)
		lm.tracks = append(lm.tracks, src.track)
	}

	m.mu.Lock()
	if m.local != nil {
		m.local.Stop()
	}
	m.local = lm
	m.mu.Unlock()

	m.log.Info("local media acquired",
		"video", c.Video != nil, "audio", c.Audio != nil, "orientation", c.Orientation)
	return lm, nil
}

// HandleRemoteTrack is invoked by the peer link for every inbound track.
// A track belonging to a new remote stream replaces the current remote media
// wholesale; there is no incremental per-track diffing.
func (m *Manager) HandleRemoteTrack(track *webrtc.TrackRemote, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	if m.remote == nil || m.remote.StreamID != track.StreamID() {
		if m.remote != nil {
			m.log.Info("remote stream replaced", "old", m.remote.StreamID, "new", track.StreamID())
			m.remote.stopSink()
		}
		m.remote = newRemoteMedia(track.StreamID(), m.log, m.recordDir)
	}
	remote := m.remote
	m.mu.Unlock()

	go remote.consume(track, pc)
}

// DropRemote stops the current remote sink, if any. Called when the remote
// peer leaves.
func (m *Manager) DropRemote() {
	m.mu.Lock()
	remote := m.remote
	m.remote = nil
	m.mu.Unlock()

	if remote != nil {
		remote.stopSink()
	}
}

// Release tears down every local and remote track and the underlying files.
// It runs on every exit path of a session and is idempotent.
func (m *Manager) Release() {
	m.mu.Lock()
	local := m.local
	remote := m.remote
	m.local = nil
	m.remote = nil
	m.mu.Unlock()

	if local != nil {
		local.Stop()
	}
	if remote != nil {
		remote.stopSink()
	}
}
