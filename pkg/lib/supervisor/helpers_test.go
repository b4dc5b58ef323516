package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib/console"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/runner"
)

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

type fakeBuilder struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

// Build returns the queued errors in order, then succeeds.
func (b *fakeBuilder) Build(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.errs) == 0 {
		return nil
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return err
}

func (b *fakeBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakeRelay struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *fakeRelay) Forward(_ context.Context, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), args...))
	return nil
}

func (r *fakeRelay) forwarded() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

type fakeRegistry struct {
	mu       sync.Mutex
	started  int
	stopped  int
	startErr error
}

func (r *fakeRegistry) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return r.startErr
}

func (r *fakeRegistry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return nil
}

func (r *fakeRegistry) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.stopped
}

// fakePoller answers the queued results in order, then reports no change.
type fakePoller struct {
	mu      sync.Mutex
	results []bool
	polls   int
}

func (p *fakePoller) Poll(string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if len(p.results) == 0 {
		return false, nil
	}
	changed := p.results[0]
	p.results = p.results[1:]
	return changed, nil
}

func (p *fakePoller) queue(results ...bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, results...)
}

type session struct {
	sup      *Supervisor
	runner   *runner.Runner
	out      *lockedBuffer
	input    chan string
	hints    chan struct{}
	builder  *fakeBuilder
	relay    *fakeRelay
	registry *fakeRegistry
	poller   *fakePoller
	cancel   context.CancelFunc
	result   chan error
}

// peerCommand prints its id on start and then idles like a peer waiting for work.
var peerCommand = []string{"sh", "-c", `echo "up $2"; exec sleep 60`, "peer"}

func newSession(t *testing.T, peers int, command []string, mutate func(*Options)) *session {
	t.Helper()
	out := &lockedBuffer{}
	cons := console.New(out, console.ColorNever)
	r, err := runner.New(runner.Options{
		Command:     command,
		Version:     "1.0",
		BasePort:    8000,
		Host:        "127.0.0.1",
		StopTimeout: 2 * time.Second,
		Sink:        cons,
	})
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	ses := &session{
		runner:   r,
		out:      out,
		input:    make(chan string),
		hints:    make(chan struct{}, 1),
		builder:  &fakeBuilder{},
		relay:    &fakeRelay{},
		registry: &fakeRegistry{},
		poller:   &fakePoller{},
	}
	opts := Options{
		Peers:    peers,
		Root:     t.TempDir(),
		Console:  cons,
		Runner:   r,
		Detector: ses.poller,
		Builder:  ses.builder,
		Relay:    ses.relay,
		Registry: ses.registry,
		Input:    ses.input,
		Hints:    ses.hints,
	}
	if mutate != nil {
		mutate(&opts)
	}
	ses.sup, err = New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.StopAll() })
	return ses
}

func (ses *session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	ses.cancel = cancel
	ses.result = make(chan error, 1)
	go func() { ses.result <- ses.sup.Run(ctx) }()
}

func (ses *session) send(t *testing.T, line string) {
	t.Helper()
	select {
	case ses.input <- line:
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not accept %q", line)
	}
}

func (ses *session) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-ses.result:
		return err
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func (ses *session) ids() []int {
	var ids []int
	for _, p := range ses.runner.State() {
		ids = append(ids, p.PeerID)
	}
	sort.Ints(ids)
	return ids
}

func (ses *session) waitIDs(t *testing.T, want ...int) {
	t.Helper()
	waitFor(t, 5*time.Second, "peers "+fmt.Sprint(want), func() bool {
		return fmt.Sprint(ses.ids()) == fmt.Sprint(want)
	})
}

func (ses *session) waitOutput(t *testing.T, contains string) {
	t.Helper()
	waitFor(t, 5*time.Second, "output "+contains, func() bool {
		return strings.Contains(ses.out.String(), contains)
	})
}

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

var errBuild = errors.New("Main.java:3: error: ';' expected")
