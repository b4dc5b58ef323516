package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib/console"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/spf13/cobra"
)

func newStateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "List the peers of a running supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, client *control.Client) error {
				ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()

				snap, err := client.State(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s, %d peer(s)\n", snap.RunID, len(snap.Peers))
				fmt.Fprint(cmd.OutOrStdout(), console.FormatTable(console.StateHeaders, console.StateRows(snap.Peers, time.Now())))
				return nil
			})
		},
	}
	return cmd
}
