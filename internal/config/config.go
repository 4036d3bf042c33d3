package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultServerURL = "ws://localhost:8080"
	DefaultSTUN      = "stun:stun.l.google.com:19302"

	DefaultListenAddr         = ":8080"
	DefaultRoomIDLength       = 6
	DefaultNegotiationTimeout = 30 * time.Second
)

// LookupFunc resolves an environment variable. Injectable so tests don't
// mutate the process environment.
type LookupFunc func(key string) (string, bool)

// ServerConfig holds the signaling server configuration.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// RoomIDLength is the length of generated room ids.
	RoomIDLength int

	// RoomTTL evicts created-but-never-joined rooms after this long.
	// Zero disables eviction.
	RoomTTL time.Duration

	// EnforceSameRoom drops directed signals whose target shares no room
	// with the sender.
	EnforceSameRoom bool
}

// LoadServer reads server configuration from the environment with hardcoded
// defaults as fallback.
func LoadServer(lookup LookupFunc) (*ServerConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := &ServerConfig{
		ListenAddr:      DefaultListenAddr,
		RoomIDLength:    DefaultRoomIDLength,
		EnforceSameRoom: true,
	}

	if v, ok := lookup("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := lookup("ROOM_ID_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid ROOM_ID_LENGTH %q", v)
		}
		cfg.RoomIDLength = n
	}
	if v, ok := lookup("ROOM_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid ROOM_TTL %q", v)
		}
		cfg.RoomTTL = d
	}
	if v, ok := lookup("ENFORCE_SAME_ROOM"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ENFORCE_SAME_ROOM %q", v)
		}
		cfg.EnforceSameRoom = b
	}

	return cfg, nil
}

// Config holds the call client configuration.
type Config struct {
	// ServerURL is the relay base URL (ws:// or wss://).
	ServerURL string

	// ICE servers.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Local capture sources.
	VideoFile string
	AudioFile string

	// RecordDir, when set, saves remote media there.
	RecordDir string

	// DisplayName is optional caller identity shown to the peer.
	DisplayName string

	// NegotiationTimeout bounds a single offer/answer attempt.
	NegotiationTimeout time.Duration
}

// Options carries CLI flag overrides for the client config.
type Options struct {
	ServerURL          string
	STUNServer         string
	TURNServer         string
	TURNUser           string
	TURNPass           string
	ForceRelay         bool
	VideoFile          string
	AudioFile          string
	RecordDir          string
	DisplayName        string
	NegotiationTimeout time.Duration
}

// Load reads client configuration with the following priority:
// CLI flags (via Options) > environment variables > defaults.
func Load(opts Options, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	pick := func(flag, env, def string) string {
		if flag != "" {
			return flag
		}
		if v, ok := lookup(env); ok && v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		ServerURL:          pick(opts.ServerURL, "SERVER_URL", DefaultServerURL),
		STUNServer:         pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:         pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:           pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:           pick(opts.TURNPass, "TURN_PASSWORD", ""),
		VideoFile:          pick(opts.VideoFile, "VIDEO_FILE", ""),
		AudioFile:          pick(opts.AudioFile, "AUDIO_FILE", ""),
		RecordDir:          pick(opts.RecordDir, "RECORD_DIR", ""),
		DisplayName:        opts.DisplayName,
		ForceRelay:         opts.ForceRelay,
		NegotiationTimeout: opts.NegotiationTimeout,
	}

	if cfg.NegotiationTimeout == 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
		if v, ok := lookup("NEGOTIATION_TIMEOUT"); ok {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid NEGOTIATION_TIMEOUT %q", v)
			}
			cfg.NegotiationTimeout = d
		}
	}

	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", cfg.ServerURL, err)
	}

	return cfg, nil
}

// WebSocketURL returns the relay's websocket endpoint, with the caller's
// display name attached when set.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	if c.DisplayName != "" {
		q := u.Query()
		q.Set("name", c.DisplayName)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// CreateRoomURL returns the HTTP endpoint that allocates a fresh room.
func (c *Config) CreateRoomURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = "/create-room"
	u.RawQuery = ""
	return u.String(), nil
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
