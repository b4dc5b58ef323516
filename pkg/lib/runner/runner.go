// Package runner is the peer process table: it launches peer programs with dedicated stdout/stderr
// pipes, runs one reader task per pipe that feeds the shared console, and tears peers down again.
//
// Structural changes (Start, Stop, StopAll) are meant to be issued from a single goroutine; State and
// Output may be called concurrently with them.
package runner

import (
	"errors"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/backlog"
)

var logger = log.New(lib.LogWriter, "runner: ", log.LstdFlags)

var (
	ErrPeerExists   = lib.ErrPeerExists
	ErrPeerNotFound = lib.ErrPeerNotFound
	// ErrNoAnchor is returned when a non-anchor peer is started before any anchor.
	ErrNoAnchor = errors.New("no anchor peer has been started")
)

const (
	// readSize is the largest chunk a reader pulls from a pipe at once.
	readSize = 10240
	// drainWindow bounds how long a reaped peer's readers may keep draining before their pipes are closed.
	drainWindow = time.Second
)

// Sink receives complete lines of one peer stream and prints them as one block.
type Sink interface {
	PrintBlock(peerID int, stream lib.StreamKind, lines []string) (int, error)
}

// Options configure how peers are launched and how their output is read.
type Options struct {
	// Command is the peer program and its leading arguments, e.g. ["java", "Main"].
	Command []string
	// Dir is the working directory of the peers.
	Dir string
	// Version is the protocol version tag handed to every peer.
	Version string
	// BasePort is the port of peer 0; peer N listens on BasePort+N.
	BasePort int
	// Host is the address non-anchor peers use to reach the anchor. Empty means detect.
	Host string
	// StartDelay is waited before the first read of a new pipe.
	StartDelay time.Duration
	// FlushPause is waited after each printed block.
	FlushPause time.Duration
	// StopTimeout is how long a terminated peer gets before it is killed. Zero waits forever.
	StopTimeout time.Duration

	Sink Sink
}

// Runner manages the peer processes of one supervisor session.
type Runner struct {
	mu       sync.RWMutex
	peers    map[int]*peerEntry
	anchor   *lib.Endpoint
	anchorID int

	opts Options
}

type peerEntry struct {
	id     int
	anchor bool
	port   int
	cmd    *exec.Cmd
	pid    int
	start  time.Time

	// read ends of the stdout/stderr pipes, owned by this entry until release
	stdout *os.File
	stderr *os.File

	readers []*reader
	history *backlog.Backlog

	// exited is closed by the waiter once the child has been reaped
	exited chan struct{}

	mu       sync.RWMutex
	exitCode *int
	end      *time.Time

	stopOnce sync.Once
}

// New creates an empty process table.
func New(opts Options) (*Runner, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, errors.New("peer command is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("output sink is required")
	}
	return &Runner{peers: make(map[int]*peerEntry), opts: opts}, nil
}
