package main

import (
	"github.com/spf13/cobra"
)

var joinFlags callFlags

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join connects to a room another participant created.

Examples:
  videocall join AB12CD --video intro.ivf
  videocall join https://call.example.com/room/AB12CD --audio voice.ogg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig(&joinFlags)
		if err != nil {
			return err
		}

		return runCall(cfg, roomID)
	},
}

func init() {
	addCallFlags(joinCmd, &joinFlags)
	rootCmd.AddCommand(joinCmd)
}
