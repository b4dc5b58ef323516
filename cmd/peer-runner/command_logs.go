package main

import (
	"context"
	"fmt"
	"io"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/spf13/cobra"
)

func newLogsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <peer_id>",
		Short: "Stream the output of one peer from its start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerID, err := parsePeerID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, flags, func(ctx context.Context, client *control.Client) error {
				return client.Logs(ctx, peerID, func(line lib.ConsoleLine) error {
					var w io.Writer = cmd.OutOrStdout()
					if line.Stream == lib.StreamStderr {
						w = cmd.ErrOrStderr()
					}
					_, err := fmt.Fprintln(w, line.Text)
					return err
				})
			})
		},
	}
	return cmd
}
