package media

// VideoConstraints configures the local video capture source. File points at
// an IVF recording (VP8, VP9 or AV1), the Go-side stand-in for a camera.
type VideoConstraints struct {
	File      string
	Width     int
	Height    int
	FrameRate int
}

// AudioConstraints configures the local audio capture source. File points at
// an Ogg Opus recording. The processing toggles describe the capture request
// and are advisory for file-backed sources.
type AudioConstraints struct {
	File             string
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Constraints describes the local media to acquire. A nil Video or Audio
// means that kind is not captured.
type Constraints struct {
	Video *VideoConstraints
	Audio *AudioConstraints

	// Orientation is carried as session metadata ("landscape"/"portrait").
	Orientation string
}

// DefaultConstraints mirrors the capture request of the reference web client:
// 640x360 at 20 fps, 48 kHz mono audio with processing enabled.
func DefaultConstraints(videoFile, audioFile string) Constraints {
	c := Constraints{Orientation: "landscape"}
	if videoFile != "" {
		c.Video = &VideoConstraints{
			File:      videoFile,
			Width:     640,
			Height:    360,
			FrameRate: 20,
		}
	}
	if audioFile != "" {
		c.Audio = &AudioConstraints{
			File:             audioFile,
			SampleRate:       48000,
			Channels:         1,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		}
	}
	return c
}
