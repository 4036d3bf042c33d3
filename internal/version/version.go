package version

// Version is the current version of the videocall tools.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/ShounakMahata18/video-call/internal/version.Version=v1.0.0'"
var Version = "dev"
