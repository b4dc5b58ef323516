package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/spf13/cobra"
)

func newStopCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <peer_id>",
		Short: "Stop one peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerID, err := parsePeerID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, client *control.Client) error {
				// Stopping may wait for the stop timeout before the peer is killed.
				ctx, cancel := context.WithTimeout(ctx, time.Minute)
				defer cancel()

				if err := client.StopPeer(ctx, peerID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", lib.PeerName(peerID))
				return nil
			})
		},
	}
	return cmd
}
