package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/console"
)

func countLines(sink *recordingSink, peerID int, stream lib.StreamKind) int {
	n := 0
	for _, l := range sink.snapshot() {
		if l.PeerID == peerID && l.Stream == stream {
			n++
		}
	}
	return n
}

func TestOutputKeepsOrderWithoutLoss(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRunner(t, `i=0; while [ $i -lt 500 ]; do echo "line-$i"; i=$((i+1)); done; exec sleep 30`, sink)

	if _, err := r.Start(0, true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 5*time.Second, "500 lines", func() bool { return countLines(sink, 0, lib.StreamStdout) == 500 })

	i := 0
	for _, l := range sink.snapshot() {
		if l.Stream != lib.StreamStdout {
			continue
		}
		if want := fmt.Sprintf("line-%d", i); l.Text != want {
			t.Fatalf("line %d: got %q, want %q", i, l.Text, want)
		}
		i++
	}
}

func TestStopDrainsBufferedOutput(t *testing.T) {
	sink := &recordingSink{}
	dir := t.TempDir()
	r, err := New(Options{
		Command:     peerScript(`i=0; while [ $i -lt 300 ]; do echo "line-$i"; i=$((i+1)); done; touch done; exec sleep 30`),
		Dir:         dir,
		StartDelay:  time.Minute,
		StopTimeout: 2 * time.Second,
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := r.Start(0, true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 3*time.Second, "peer to finish writing", func() bool {
		_, err := os.Stat(filepath.Join(dir, "done"))
		return err == nil
	})
	if got := countLines(sink, 0, lib.StreamStdout); got != 0 {
		t.Fatalf("reader should still be in its start delay, got %d lines", got)
	}

	if _, err := r.Stop(0); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := countLines(sink, 0, lib.StreamStdout); got != 300 {
		t.Fatalf("expected all 300 buffered lines after Stop, got %d", got)
	}
}

// lockedBuffer lets the test read console output while readers write to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConcurrentPeersDoNotInterleave(t *testing.T) {
	var buf lockedBuffer
	out := console.New(&buf, console.ColorNever)
	r := newTestRunner(t, `i=0; while [ $i -lt 200 ]; do echo "$3-line-$i"; i=$((i+1)); done; exec sleep 30`, out)

	for id := 0; id < 3; id++ {
		if _, err := r.Start(id, id == 0); err != nil {
			t.Fatalf("Start %d failed: %v", id, err)
		}
	}

	waitFor(t, 5*time.Second, "all lines", func() bool {
		return strings.Count(buf.String(), "-line-") >= 600
	})
	r.StopAll()

	total := 0
	owner := -1
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case line == "":
			owner = -1
		case strings.HasPrefix(line, "peer"):
			var id int
			if _, err := fmt.Sscanf(line, "peer%d:", &id); err != nil {
				t.Fatalf("malformed label line %q", line)
			}
			owner = id
			if !strings.HasPrefix(line, console.Label(id)+lib.PeerName(id)+"-line-") {
				t.Fatalf("line %q does not belong to peer %d", line, id)
			}
			total++
		case strings.HasPrefix(line, "-"):
			if owner < 0 {
				t.Fatalf("continuation line %q outside a block", line)
			}
			if !strings.HasPrefix(line, console.Spacer(owner)+lib.PeerName(owner)+"-line-") {
				t.Fatalf("line %q interleaved into block of peer %d", line, owner)
			}
			total++
		default:
			t.Fatalf("unexpected console line %q", line)
		}
	}
	if total != 600 {
		t.Fatalf("expected 600 printed lines, got %d", total)
	}
}

func TestOutputSubscriptionFollowsPeer(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRunner(t, `echo first; sleep 0.2; echo second; exec sleep 30`, sink)

	if _, err := r.Output(context.Background(), 0); err == nil {
		t.Fatalf("expected error for unknown peer")
	}
	if _, err := r.Start(0, true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ch, err := r.Output(context.Background(), 0)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case l := <-ch:
			got = append(got, l.Text)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}
	if got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected lines %v", got)
	}

	if _, err := r.Stop(0); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected subscription to close after Stop")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription did not close")
	}
}

func TestSplitComplete(t *testing.T) {
	complete, rest := splitComplete([]byte("a\nb\nc"))
	if string(complete) != "a\nb\n" || string(rest) != "c" {
		t.Fatalf("unexpected split %q %q", complete, rest)
	}
	complete, rest = splitComplete([]byte("partial"))
	if complete != nil || string(rest) != "partial" {
		t.Fatalf("unexpected split %q %q", complete, rest)
	}
}

func TestToLines(t *testing.T) {
	got := toLines([]byte("one\r\ntwo\n\nthree\n"))
	if strings.Join(got, "|") != "one|two||three" {
		t.Fatalf("unexpected lines %q", got)
	}
	got = toLines([]byte{'o', 'k', 0xff, '\n'})
	if len(got) != 1 || got[0] != "ok�" {
		t.Fatalf("invalid utf-8 not replaced: %q", got)
	}
}
