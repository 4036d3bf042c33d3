package media

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const localStreamID = "videocall"

// LocalMedia bundles the acquired local tracks and their pacing goroutines.
// Tracks are attached to a peer connection first; Start begins feeding
// samples once the connection is up. Sources loop at end of file.
type LocalMedia struct {
	Orientation string

	log     *slog.Logger
	tracks  []webrtc.TrackLocal
	sources []source

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

type source interface {
	stream(log *slog.Logger, stop <-chan struct{})
	close()
}

// Tracks returns the outbound tracks to add to a peer connection.
func (l *LocalMedia) Tracks() []webrtc.TrackLocal {
	return l.tracks
}

// Start launches one pacing goroutine per source. Idempotent.
func (l *LocalMedia) Start() {
	l.startOnce.Do(func() {
		for _, s := range l.sources {
			go s.stream(l.log, l.stop)
		}
	})
}

// Stop halts sample pacing and releases the underlying files. Idempotent.
func (l *LocalMedia) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		for _, s := range l.sources {
			s.close()
		}
	})
}

// videoSource feeds IVF frames into a sample track at the constrained frame
// rate.
type videoSource struct {
	file     *os.File
	reader   *ivfreader.IVFReader
	track    *webrtc.TrackLocalStaticSample
	interval time.Duration
}

func newVideoSource(c *VideoConstraints) (*videoSource, error) {
	f, err := os.Open(c.File)
	if err != nil {
		return nil, newError("open video source", c.File, errors.Join(ErrSourceUnavailable, err))
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, newError("read ivf header", c.File, errors.Join(ErrSourceUnavailable, err))
	}

	var mime string
	switch header.FourCC {
	case "VP80":
		mime = webrtc.MimeTypeVP8
	case "VP90":
		mime = webrtc.MimeTypeVP9
	case "AV01":
		mime = webrtc.MimeTypeAV1
	default:
		f.Close()
		return nil, newError("read ivf header", c.File, ErrUnsupportedCodec)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime}, "video", localStreamID)
	if err != nil {
		f.Close()
		return nil, newError("create video track", c.File, err)
	}

	frameRate := c.FrameRate
	if frameRate <= 0 {
		frameRate = 20
	}

	return &videoSource{
		file:     f,
		reader:   reader,
		track:    track,
		interval: time.Second / time.Duration(frameRate),
	}, nil
}

func (s *videoSource) stream(log *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, _, err := s.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if err := s.rewind(); err != nil {
				log.Warn("video source rewind failed", "err", err)
				return
			}
			continue
		}
		if err != nil {
			log.Warn("video source read failed", "err", err)
			return
		}

		if err := s.track.WriteSample(pionmedia.Sample{Data: frame, Duration: s.interval}); err != nil {
			log.Warn("video sample write failed", "err", err)
			return
		}
	}
}

func (s *videoSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

func (s *videoSource) close() {
	s.file.Close()
}

// audioSource feeds Ogg Opus pages into a sample track, pacing by the page
// granule positions.
type audioSource struct {
	file       *os.File
	reader     *oggreader.OggReader
	track      *webrtc.TrackLocalStaticSample
	sampleRate float64
}

func newAudioSource(c *AudioConstraints) (*audioSource, error) {
	f, err := os.Open(c.File)
	if err != nil {
		return nil, newError("open audio source", c.File, errors.Join(ErrSourceUnavailable, err))
	}

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, newError("read ogg header", c.File, errors.Join(ErrSourceUnavailable, err))
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", localStreamID)
	if err != nil {
		f.Close()
		return nil, newError("create audio track", c.File, err)
	}

	sampleRate := float64(c.SampleRate)
	if sampleRate <= 0 {
		sampleRate = 48000
	}

	return &audioSource{
		file:       f,
		reader:     reader,
		track:      track,
		sampleRate: sampleRate,
	}, nil
}

func (s *audioSource) stream(log *slog.Logger, stop <-chan struct{}) {
	// Pages carry a variable number of samples; the granule delta gives the
	// wall-clock duration of each page.
	var lastGranule uint64

	for {
		page, header, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if err := s.rewind(); err != nil {
				log.Warn("audio source rewind failed", "err", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			log.Warn("audio source read failed", "err", err)
			return
		}

		sampleCount := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(sampleCount/s.sampleRate*1000) * time.Millisecond

		if err := s.track.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			log.Warn("audio sample write failed", "err", err)
			return
		}

		select {
		case <-stop:
			return
		case <-time.After(duration):
		}
	}
}

func (s *audioSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

func (s *audioSource) close() {
	s.file.Close()
}
