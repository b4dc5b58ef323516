package main

import (
	"context"
	"log"
	"os"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/changes"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/console"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/control"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/external"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/runner"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/supervisor"
)

var logger = log.New(lib.LogWriter, "peer-runner: ", log.LstdFlags)

// runSupervisor wires the session from cfg and runs it until the operator exits or ctx is cancelled.
func runSupervisor(ctx context.Context, cfg config.Config) error {
	cons := console.New(os.Stdout, cfg.Output.Color)

	r, err := runner.New(runner.Options{
		Command:     cfg.Peer.Command,
		Dir:         cfg.Peer.Dir,
		Version:     cfg.Version,
		BasePort:    cfg.Peer.BasePort,
		Host:        cfg.Peer.Host,
		StartDelay:  cfg.Output.StartDelay,
		FlushPause:  cfg.Output.FlushPause,
		StopTimeout: cfg.StopTimeout,
		Sink:        cons,
	})
	if err != nil {
		return err
	}

	opts := supervisor.Options{
		Peers:       cfg.Peers,
		Root:        cfg.Root,
		AutoRebuild: cfg.AutoRebuild,
		Console:     cons,
		Runner:      r,
		Detector:    changes.NewDetector(cfg.Extensions...),
		Builder:     external.Builder{Command: cfg.Build.Command, Dir: cfg.Build.Dir},
		Relay:       external.Relay{Command: cfg.Relay.Command, Dir: cfg.Relay.Dir, Output: cons},
		Registry: &external.Registry{
			Command:     cfg.Registry.Command,
			Dir:         cfg.Registry.Dir,
			SettleDelay: cfg.Registry.SettleDelay,
			Output:      cons,
		},
		Input: supervisor.ReadLines(os.Stdin),
	}

	watcher, err := changes.NewWatcher(cfg.Root, cfg.Extensions...)
	if err != nil {
		logger.Printf("File watching disabled: %v", err)
	} else {
		defer watcher.Close()
		opts.Hints = watcher.Hints()
	}

	sup, err := supervisor.New(opts)
	if err != nil {
		return err
	}

	if cfg.Control.Enabled {
		srv, err := serveControl(sup, cfg.Control)
		if err != nil {
			cons.Printf("Remote control disabled: %v\n", err)
		} else {
			defer srv.Stop()
		}
	}

	return sup.Run(ctx)
}

func serveControl(sup *supervisor.Supervisor, cfg config.ControlConfig) (*control.GRPCServer, error) {
	lis, err := control.Listen(cfg.Address)
	if err != nil {
		return nil, err
	}
	srv, err := control.NewGRPCServer(sup, lis, cfg.TLS)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Printf("Control server stopped: %v", err)
		}
	}()
	logger.Printf("Control server listening at %v", srv.Addr())
	return srv, nil
}
