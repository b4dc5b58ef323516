package control

import (
	"context"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// fakeController keeps a table of peers in memory.
type fakeController struct {
	mu       sync.Mutex
	runID    string
	peers    map[int]lib.PeerStatus
	output   map[int][]lib.ConsoleLine
	restarts int
	closed   bool
}

func newFakeController(ids ...int) *fakeController {
	f := &fakeController{runID: "run-1", peers: map[int]lib.PeerStatus{}, output: map[int][]lib.ConsoleLine{}}
	for _, id := range ids {
		f.peers[id] = lib.PeerStatus{PeerID: id, Pid: 1000 + id, Anchor: id == 0, Port: 8000 + id, StartTime: time.Now()}
	}
	return f
}

func (f *fakeController) State() (string, []lib.PeerStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]lib.PeerStatus, 0, len(f.peers))
	for _, p := range f.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return f.runID, out
}

func (f *fakeController) StartPeer(_ context.Context, peerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return lib.ErrShuttingDown
	}
	if _, ok := f.peers[peerID]; ok {
		return lib.ErrPeerExists
	}
	f.peers[peerID] = lib.PeerStatus{PeerID: peerID, Pid: 1000 + peerID, Port: 8000 + peerID, StartTime: time.Now()}
	return nil
}

func (f *fakeController) StopPeer(_ context.Context, peerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.peers[peerID]; !ok {
		return lib.ErrPeerNotFound
	}
	delete(f.peers, peerID)
	return nil
}

func (f *fakeController) Restart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	f.runID = "run-2"
	return nil
}

// Output replays the recorded lines and closes, as a stopped peer would.
func (f *fakeController) Output(ctx context.Context, peerID int) (<-chan lib.ConsoleLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.peers[peerID]; !ok {
		return nil, lib.ErrPeerNotFound
	}
	lines := append([]lib.ConsoleLine(nil), f.output[peerID]...)
	ch := make(chan lib.ConsoleLine)
	go func() {
		defer close(ch)
		for _, l := range lines {
			select {
			case ch <- l:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// startBufconn serves ctrl over an in-memory listener and returns a connected client.
func startBufconn(t *testing.T, ctrl Controller, serverTLS *config.TLSConfig, dial ...grpc.DialOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := NewGRPCServer(ctrl, lis, serverTLS)
	if err != nil {
		t.Fatalf("NewGRPCServer: %v", err)
	}
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	if len(dial) == 0 {
		dial = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	dial = append(dial, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	conn, err := grpc.NewClient("passthrough:///bufnet", dial...)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	client := NewClient(conn)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
