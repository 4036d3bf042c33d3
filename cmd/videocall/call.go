package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShounakMahata18/video-call/internal/call"
	"github.com/ShounakMahata18/video-call/internal/config"
	"github.com/ShounakMahata18/video-call/internal/logging"
	"github.com/ShounakMahata18/video-call/internal/media"
)

// callFlags is the per-command flag set shared by create and join.
type callFlags struct {
	server    string
	stun      string
	turn      string
	turnUser  string
	turnPass  string
	relay     bool
	video     string
	audio     string
	recordDir string
	name      string
	timeout   time.Duration
}

func addCallFlags(cmd *cobra.Command, f *callFlags) {
	cmd.Flags().StringVar(&f.server, "server", "", "signaling server URL (ws:// or wss://)")
	cmd.Flags().StringVar(&f.stun, "stun", "", "STUN server URL")
	cmd.Flags().StringVar(&f.turn, "turn", "", "TURN server")
	cmd.Flags().StringVar(&f.turnUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	cmd.Flags().BoolVar(&f.relay, "relay", false, "force media through the TURN relay")
	cmd.Flags().StringVar(&f.video, "video", "", "IVF file used as the video source")
	cmd.Flags().StringVar(&f.audio, "audio", "", "Ogg Opus file used as the audio source")
	cmd.Flags().StringVar(&f.recordDir, "record-dir", "", "directory to record remote media into")
	cmd.Flags().StringVar(&f.name, "name", "", "display name shown to the peer")
	cmd.Flags().DurationVar(&f.timeout, "negotiation-timeout", 0, "abandon a stalled negotiation after this long")
}

func loadConfig(f *callFlags) (*config.Config, error) {
	return config.Load(config.Options{
		ServerURL:          f.server,
		STUNServer:         f.stun,
		TURNServer:         f.turn,
		TURNUser:           f.turnUser,
		TURNPass:           f.turnPass,
		ForceRelay:         f.relay,
		VideoFile:          f.video,
		AudioFile:          f.audio,
		RecordDir:          f.recordDir,
		DisplayName:        f.name,
		NegotiationTimeout: f.timeout,
	}, nil)
}

// createRoom asks the relay's HTTP endpoint for a fresh room id.
func createRoom(cfg *config.Config) (string, error) {
	endpoint, err := cfg.CreateRoomURL()
	if err != nil {
		return "", err
	}

	resp, err := http.Post(endpoint, "application/json", nil)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create room: server returned %s", resp.Status)
	}

	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	if body.RoomID == "" {
		return "", fmt.Errorf("create room: empty room id in response")
	}
	return body.RoomID, nil
}

// parseRoomInput accepts a raw room id or a room URL and returns the id.
func parseRoomInput(input string) (string, error) {
	if !strings.Contains(input, "/") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid room input %q", input)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	id := parts[len(parts)-1]
	if id == "" {
		return "", fmt.Errorf("no room id in %q", input)
	}
	return id, nil
}

// runCall acquires local media, attaches to the relay and drives the call
// session until interrupted.
func runCall(cfg *config.Config, roomID string) error {
	logging.Init()

	mgr := media.NewManager(slog.Default(), cfg.RecordDir)
	defer mgr.Release()

	local, err := mgr.Acquire(media.DefaultConstraints(cfg.VideoFile, cfg.AudioFile))
	if err != nil {
		// Capture failure is terminal for the session; no retry.
		return err
	}

	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return err
	}

	relay := call.NewSignalClient(wsURL)
	if err := relay.Connect(); err != nil {
		return err
	}
	defer relay.Close()

	session := call.NewSession(call.SessionConfig{
		RoomID: roomID,
		Relay:  relay,
		NewLink: func() (call.PeerLink, error) {
			return call.NewPeerLink(cfg, local, mgr)
		},
		Timeout: cfg.NegotiationTimeout,
		OnState: func(state call.State) {
			fmt.Printf("  %s\n", state)
		},
		OnRemoteGone: mgr.DropRemote,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Joining room %s (press Ctrl-C to hang up)\n", roomID)
	return session.Run(ctx)
}
