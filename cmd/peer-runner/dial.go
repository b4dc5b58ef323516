package main

import (
	"context"
	"fmt"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// dial connects to the supervisor configured by the config file and environment.
func dial(cmd *cobra.Command, flags *rootFlags) (*control.Client, error) {
	cfg, err := config.Load(flags.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	return control.Dial(cfg.Control.Address, cfg.Control.TLS)
}

// withClient runs fn against a connected client.
func withClient(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, client *control.Client) error) error {
	client, err := dial(cmd, flags)
	if err != nil {
		return err
	}
	defer client.Close()

	err = fn(cmd.Context(), client)
	if grpcCode(err) == codes.Unavailable {
		return fmt.Errorf("no supervisor reachable: %w", err)
	}
	return err
}

func grpcCode(err error) codes.Code {
	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown
	}
	return st.Code()
}
