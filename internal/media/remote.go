package media

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// pliInterval is how often a keyframe is requested from the remote sender, so
// a late-joining sink does not wait indefinitely for a decodable frame.
const pliInterval = 3 * time.Second

// RemoteMedia drains the tracks of one remote stream. It is created when the
// first track of a stream arrives and stopped when the stream is replaced,
// the peer leaves, or the session is released.
type RemoteMedia struct {
	StreamID string

	log       *slog.Logger
	recordDir string

	stopOnce sync.Once
	stop     chan struct{}
}

func newRemoteMedia(streamID string, log *slog.Logger, recordDir string) *RemoteMedia {
	return &RemoteMedia{
		StreamID:  streamID,
		log:       log.With("stream", streamID),
		recordDir: recordDir,
		stop:      make(chan struct{}),
	}
}

func (r *RemoteMedia) stopSink() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// consume reads one remote track until it ends. Video tracks additionally get
// a periodic PLI so the sender keeps pushing keyframes.
func (r *RemoteMedia) consume(track *webrtc.TrackRemote, pc *webrtc.PeerConnection) {
	kind := track.Kind().String()
	r.log.Info("remote track started", "kind", kind, "codec", track.Codec().MimeType)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go r.keyframeLoop(track, pc)
	}

	writer := r.openWriter(track)
	if writer != nil {
		defer writer.Close()
	}

	var packets uint64
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			break
		}
		packets++

		if writer != nil {
			if err := writer.WriteRTP(pkt); err != nil {
				r.log.Warn("record write failed", "kind", kind, "err", err)
				writer.Close()
				writer = nil
			}
		}

		select {
		case <-r.stop:
			r.log.Info("remote track stopped", "kind", kind, "packets", packets)
			return
		default:
		}
	}

	r.log.Info("remote track ended", "kind", kind, "packets", packets)
}

func (r *RemoteMedia) keyframeLoop(track *webrtc.TrackRemote, pc *webrtc.PeerConnection) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				return
			}
		}
	}
}

// openWriter creates a recording sink for the track when a record directory
// is configured. Unsupported codecs are skipped with a warning rather than
// failing the call.
func (r *RemoteMedia) openWriter(track *webrtc.TrackRemote) pionmedia.Writer {
	if r.recordDir == "" {
		return nil
	}

	switch track.Codec().MimeType {
	case webrtc.MimeTypeVP8:
		name := filepath.Join(r.recordDir, fmt.Sprintf("remote-%s.ivf", r.StreamID))
		w, err := ivfwriter.New(name)
		if err != nil {
			r.log.Warn("ivf recorder unavailable", "err", err)
			return nil
		}
		return w
	case webrtc.MimeTypeOpus:
		name := filepath.Join(r.recordDir, fmt.Sprintf("remote-%s.ogg", r.StreamID))
		w, err := oggwriter.New(name, 48000, 2)
		if err != nil {
			r.log.Warn("ogg recorder unavailable", "err", err)
			return nil
		}
		return w
	default:
		r.log.Warn("recording skipped, unsupported codec", "codec", track.Codec().MimeType)
		return nil
	}
}
