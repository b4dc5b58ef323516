// Package supervisor drives a peer-runner session: it builds the peer program, launches the fleet, and
// dispatches operator commands until the operator exits.
//
// Every change to the process table happens on the goroutine running Run. Remote callers reach it through
// StartPeer, StopPeer and Restart, which queue a request and wait for the dispatcher to answer.
package supervisor

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/console"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/external"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/runner"
)

var logger = log.New(lib.LogWriter, "supervisor: ", log.LstdFlags)

// ErrShuttingDown is returned to remote requests once the dispatcher stopped serving.
var ErrShuttingDown = lib.ErrShuttingDown

const tips = "Type 'exit' to quit, 'restart' to relaunch every peer, 'state' to list peers, " +
	"'start <id>' or 'stop <id>' to manage one peer.\n" +
	"Press ENTER to check for changes and rebuild. Anything else is passed to the interface script."

// Builder compiles the peer program.
type Builder interface {
	Build(ctx context.Context) error
}

// Relay forwards operator text to the peers' interface script.
type Relay interface {
	Forward(ctx context.Context, args []string) error
}

// Registry is the helper process that lives for the whole session.
type Registry interface {
	Start(ctx context.Context) error
	Stop() error
}

// Poller reports whether the sources under root changed since the last call.
type Poller interface {
	Poll(rootDir string) (bool, error)
}

// Options wire a Supervisor to its collaborators.
type Options struct {
	// Peers is the fleet size; peer 0 is the anchor.
	Peers int
	// Root is the source tree watched for changes.
	Root string
	// AutoRebuild makes change hints behave like an empty operator line.
	AutoRebuild bool

	Console  *console.Console
	Runner   *runner.Runner
	Detector Poller
	Builder  Builder
	Relay    Relay
	Registry Registry

	// Input delivers operator lines. Closing it ends the session.
	Input <-chan string
	// Hints, when set, signals that files under Root may have changed.
	Hints <-chan struct{}
}

// Supervisor is one peer-runner session.
type Supervisor struct {
	opts Options

	requests chan request
	done     chan struct{}
	doneOnce sync.Once

	mu    sync.RWMutex
	runID string
}

// Action tells the fleet loop what to do after a command.
type Action int

const (
	ActionContinue Action = iota
	ActionRestart
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionRestart:
		return "restart"
	case ActionExit:
		return "exit"
	default:
		return "continue"
	}
}

// New checks the options and returns a Supervisor ready to Run.
func New(opts Options) (*Supervisor, error) {
	if opts.Peers < 1 {
		return nil, errors.New("at least one peer is required")
	}
	if opts.Console == nil || opts.Runner == nil {
		return nil, errors.New("console and runner are required")
	}
	if opts.Detector == nil || opts.Builder == nil || opts.Relay == nil {
		return nil, errors.New("detector, builder and relay are required")
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	return &Supervisor{
		opts:     opts,
		requests: make(chan request),
		done:     make(chan struct{}),
	}, nil
}

// Run executes the session: start the registry, build once, then keep launching fleets until exit.
// It returns the initial build error, if any; later build failures are reported on the console.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.doneOnce.Do(func() { close(s.done) })

	if s.opts.Registry != nil {
		if err := s.opts.Registry.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := s.opts.Registry.Stop(); err != nil {
				logger.Printf("Failed to stop registry: %v", err)
			}
		}()
	}

	if _, err := s.opts.Detector.Poll(s.opts.Root); err != nil {
		return err
	}
	if err := s.build(ctx); err != nil {
		return err
	}
	s.opts.Console.Println(tips)

	for {
		s.launchFleet()
		act := s.serve(ctx)
		s.teardown()
		logger.Printf("Fleet %s ended with %s", s.RunID(), act)
		if act == ActionExit {
			return nil
		}
	}
}

// RunID identifies the current fleet.
func (s *Supervisor) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// State returns the current run id and live peers. Safe to call from any goroutine.
func (s *Supervisor) State() (string, []lib.PeerStatus) {
	return s.RunID(), s.opts.Runner.State()
}

// Output follows the output of one peer of the current fleet.
func (s *Supervisor) Output(ctx context.Context, peerID int) (<-chan lib.ConsoleLine, error) {
	return s.opts.Runner.Output(ctx, peerID)
}

func (s *Supervisor) launchFleet() {
	runID := lib.NewID()
	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()

	logger.Printf("Launching fleet %s with %d peer(s)", runID, s.opts.Peers)
	for id := 0; id < s.opts.Peers; id++ {
		if _, err := s.opts.Runner.Start(id, id == 0); err != nil {
			if id == 0 {
				s.opts.Console.Printf("Failed to start anchor %s: %v\nFleet not started, fix the sources and press ENTER.\n", lib.PeerName(id), err)
				return
			}
			s.opts.Console.Printf("Failed to start %s: %v\n", lib.PeerName(id), err)
		}
	}
}

func (s *Supervisor) teardown() {
	stopped := s.opts.Runner.StopAll()
	logger.Printf("Stopped %d peer(s)", len(stopped))
}

// serve is the inner loop of one fleet.
func (s *Supervisor) serve(ctx context.Context) Action {
	hinted := false
	for {
		select {
		case <-ctx.Done():
			return ActionExit
		case line, ok := <-s.opts.Input:
			if !ok {
				return ActionExit
			}
			hinted = false
			if act := s.Dispatch(ctx, line); act != ActionContinue {
				return act
			}
		case req := <-s.requests:
			if act := s.handle(ctx, req); act != ActionContinue {
				return act
			}
		case <-s.opts.Hints:
			if s.opts.AutoRebuild {
				if act := s.checkChanges(ctx); act != ActionContinue {
					return act
				}
				continue
			}
			if !hinted {
				s.opts.Console.Println("Changes detected, press ENTER to rebuild.")
				hinted = true
			}
		}
	}
}

func (s *Supervisor) build(ctx context.Context) error {
	s.opts.Console.Println("Compiling...")
	if err := s.opts.Builder.Build(ctx); err != nil {
		s.opts.Console.Printf("Build failed: %v\n", err)
		var buildErr *external.BuildError
		if errors.As(err, &buildErr) && strings.TrimSpace(buildErr.Output) != "" {
			s.opts.Console.Println(strings.TrimRight(buildErr.Output, "\n"))
		}
		return err
	}
	s.opts.Console.Println("SUCCESS")
	return nil
}

// checkChanges polls the sources, rebuilds when they changed and asks for a restart on success.
func (s *Supervisor) checkChanges(ctx context.Context) Action {
	changed, err := s.opts.Detector.Poll(s.opts.Root)
	if err != nil {
		s.opts.Console.Printf("Failed to scan %s: %v\n", s.opts.Root, err)
		return ActionContinue
	}
	if !changed {
		s.opts.Console.Println("No changes found.")
		return ActionContinue
	}
	s.opts.Console.Println("Found changes.")
	if err := s.build(ctx); err != nil {
		return ActionContinue
	}
	return ActionRestart
}
