package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/spf13/cobra"
)

func newStartCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <peer_id>",
		Short: "Start one peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerID, err := parsePeerID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, client *control.Client) error {
				ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
				defer cancel()

				if err := client.StartPeer(ctx, peerID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", lib.PeerName(peerID))
				return nil
			})
		},
	}
	return cmd
}

func parsePeerID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid peer id %q", arg)
	}
	return id, nil
}
