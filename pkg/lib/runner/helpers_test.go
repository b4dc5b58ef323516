package runner

import (
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// recordingSink keeps every printed line.
type recordingSink struct {
	mu     sync.Mutex
	lines  []lib.ConsoleLine
	blocks int
}

func (s *recordingSink) PrintBlock(peerID int, stream lib.StreamKind, lines []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks++
	n := 0
	for i, text := range lines {
		if i > 0 && text == "" {
			continue
		}
		s.lines = append(s.lines, lib.ConsoleLine{PeerID: peerID, Stream: stream, Text: text})
		n++
	}
	return n, nil
}

func (s *recordingSink) snapshot() []lib.ConsoleLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lib.ConsoleLine(nil), s.lines...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func (s *recordingSink) waitLine(t *testing.T, peerID int, stream lib.StreamKind, contains string) lib.ConsoleLine {
	t.Helper()
	var found lib.ConsoleLine
	waitFor(t, 3*time.Second, "line "+contains, func() bool {
		for _, l := range s.snapshot() {
			if l.PeerID == peerID && l.Stream == stream && strings.Contains(l.Text, contains) {
				found = l
				return true
			}
		}
		return false
	})
	return found
}

// peerScript builds a peer command from a shell script. Arguments arrive as
// $1 version, $2 id, $3 name, $4 port, $5 anchor host, $6 anchor port.
func peerScript(script string) []string {
	return []string{"sh", "-c", script, "peer"}
}

func newTestRunner(t *testing.T, script string, sink Sink) *Runner {
	t.Helper()
	r, err := New(Options{
		Command:     peerScript(script),
		Dir:         t.TempDir(),
		Version:     "1.0",
		BasePort:    8000,
		Host:        "10.0.0.1",
		StartDelay:  10 * time.Millisecond,
		FlushPause:  time.Millisecond,
		StopTimeout: 2 * time.Second,
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.StopAll() })
	return r
}

// openFDs counts the descriptors of this process, or -1 when that is not possible.
func openFDs() int {
	if runtime.GOOS != "linux" {
		return -1
	}
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return -1
	}
	return len(entries)
}
