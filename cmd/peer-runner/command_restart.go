package main

import (
	"context"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/spf13/cobra"
)

func newRestartCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop every peer and launch a fresh fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, client *control.Client) error {
				ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
				defer cancel()
				return client.Restart(ctx)
			})
		},
	}
	return cmd
}
