package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShounakMahata18/video-call/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "videocall",
	Short:   "Two-party audio/video calls between peers using WebRTC",
	Version: version.Version,
	Long: `videocall establishes a direct peer-to-peer audio/video session with one
other participant. Negotiation metadata travels through a signaling relay;
once the call is up, media flows directly between the peers.

Local capture uses media files as sources: an IVF file for video and an Ogg
Opus file for audio. At least one of --video or --audio is required.`,
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
