package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createFlags callFlags

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and wait for a peer to join",
	Long: `Create allocates a fresh room on the signaling server, joins it and waits
for the other participant.

Examples:
  videocall create --video intro.ivf --audio voice.ogg
  videocall create --audio voice.ogg --name alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(&createFlags)
		if err != nil {
			return err
		}

		roomID, err := createRoom(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Room created: %s\n", roomID)
		fmt.Printf("Ask your peer to run: videocall join %s\n", roomID)

		return runCall(cfg, roomID)
	},
}

func init() {
	addCallFlags(createCmd, &createFlags)
	rootCmd.AddCommand(createCmd)
}
