package lib

import (
	"fmt"
	"time"
)

// StreamKind identifies which standard stream of a peer a chunk of output came from.
type StreamKind int

const (
	StreamStdout StreamKind = iota
	StreamStderr
)

func (k StreamKind) String() string {
	switch k {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// ConsoleLine is one line of peer output on its way to the console.
type ConsoleLine struct {
	PeerID int
	Stream StreamKind
	Text   string
}

// Endpoint is a host/port pair a peer listens on.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// PeerStatus captures what the process table knows about one registered peer.
// ExitCode and EndTime are set once the child exited on its own but has not been stopped yet.
type PeerStatus struct {
	PeerID    int
	Pid       int
	Anchor    bool
	Port      int
	StartTime time.Time
	ExitCode  *int
	EndTime   *time.Time
}

// Running reports whether the peer process is still alive.
func (s PeerStatus) Running() bool {
	return s.EndTime == nil
}

// PeerName is the peer-local name handed to the peer program and used as console label.
func PeerName(peerID int) string {
	return fmt.Sprintf("peer%d", peerID)
}
