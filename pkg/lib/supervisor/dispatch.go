package supervisor

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// Dispatch runs one operator line and reports what the fleet loop should do next.
func (s *Supervisor) Dispatch(ctx context.Context, line string) Action {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return s.checkChanges(ctx)
	}

	switch fields[0] {
	case "exit":
		if len(fields) == 1 {
			return ActionExit
		}
	case "restart":
		if len(fields) == 1 {
			return ActionRestart
		}
	case "state":
		if len(fields) == 1 {
			s.opts.Console.PrintState(s.RunID(), s.opts.Runner.State())
			return ActionContinue
		}
	case "help":
		if len(fields) == 1 {
			s.opts.Console.Println(tips)
			return ActionContinue
		}
	case "start", "stop":
		id, err := parsePeerID(fields)
		if err != nil {
			s.opts.Console.Printf("Usage: %s <id>\n", fields[0])
			return ActionContinue
		}
		if fields[0] == "start" {
			s.report(s.startPeer(id))
		} else {
			s.report(s.stopPeer(id))
		}
		return ActionContinue
	}

	if err := s.opts.Relay.Forward(ctx, fields); err != nil {
		s.opts.Console.Printf("Interface command failed: %v\n", err)
	}
	return ActionContinue
}

func parsePeerID(fields []string) (int, error) {
	if len(fields) != 2 {
		return 0, errors.New("expected exactly one peer id")
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, errors.New("peer id must not be negative")
	}
	return id, nil
}

func (s *Supervisor) report(err error) {
	if err != nil {
		s.opts.Console.Println(err)
	}
}

// startPeer launches one peer. With no anchor in the current fleet, or when id is the anchor's id,
// the peer is started as the anchor.
func (s *Supervisor) startPeer(id int) error {
	name := lib.PeerName(id)
	if s.opts.Runner.Has(id) {
		return &peerError{op: "start", name: name, err: lib.ErrPeerExists}
	}
	anchorID, _, ok := s.opts.Runner.Anchor()
	status, err := s.opts.Runner.Start(id, !ok || anchorID == id)
	if err != nil {
		return &peerError{op: "start", name: name, err: err}
	}
	s.opts.Console.Printf("Started %s (pid %d)\n", name, status.Pid)
	return nil
}

func (s *Supervisor) stopPeer(id int) error {
	name := lib.PeerName(id)
	status, err := s.opts.Runner.Stop(id)
	if err != nil {
		return &peerError{op: "stop", name: name, err: err}
	}
	s.opts.Console.Printf("Stopped %s (pid %d)\n", name, status.Pid)
	return nil
}

type peerError struct {
	op   string
	name string
	err  error
}

func (e *peerError) Error() string {
	switch {
	case errors.Is(e.err, lib.ErrPeerExists):
		return e.name + " is already running"
	case errors.Is(e.err, lib.ErrPeerNotFound):
		return e.name + " is not running"
	}
	return "failed to " + e.op + " " + e.name + ": " + e.err.Error()
}

func (e *peerError) Unwrap() error {
	return e.err
}
