package control

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

func TestStateRoundTrip(t *testing.T) {
	ctrl := newFakeController(0, 1)
	code := 2
	p := ctrl.peers[1]
	p.ExitCode = &code
	end := p.StartTime.Add(3e9)
	p.EndTime = &end
	ctrl.peers[1] = p

	client := startBufconn(t, ctrl, nil)
	snap, err := client.State(testContext(t))
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.RunID != "run-1" || len(snap.Peers) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	anchor := snap.Peers[0]
	if anchor.PeerID != 0 || !anchor.Anchor || anchor.Port != 8000 || anchor.Pid != 1000 || !anchor.Running() {
		t.Fatalf("unexpected anchor %+v", anchor)
	}
	if !anchor.StartTime.Equal(ctrl.peers[0].StartTime) {
		t.Fatalf("start time changed on the wire: %v vs %v", anchor.StartTime, ctrl.peers[0].StartTime)
	}
	exited := snap.Peers[1]
	if exited.Running() || exited.ExitCode == nil || *exited.ExitCode != 2 || !exited.EndTime.Equal(end) {
		t.Fatalf("unexpected exited peer %+v", exited)
	}
}

func TestStartStopErrors(t *testing.T) {
	ctrl := newFakeController(0, 1)
	client := startBufconn(t, ctrl, nil)
	ctx := testContext(t)

	if err := client.StopPeer(ctx, 1); err != nil {
		t.Fatalf("StopPeer: %v", err)
	}
	if err := client.StopPeer(ctx, 1); !errors.Is(err, lib.ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
	if err := client.StartPeer(ctx, 0); !errors.Is(err, lib.ErrPeerExists) {
		t.Fatalf("expected ErrPeerExists, got %v", err)
	}
	if err := client.StartPeer(ctx, 1); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	if _, peers := ctrl.State(); len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if err := client.StartPeer(ctx, -1); err == nil {
		t.Fatalf("expected negative id to be rejected")
	}

	ctrl.mu.Lock()
	ctrl.closed = true
	ctrl.mu.Unlock()
	if err := client.StartPeer(ctx, 7); !errors.Is(err, lib.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestRestart(t *testing.T) {
	ctrl := newFakeController(0)
	client := startBufconn(t, ctrl, nil)
	ctx := testContext(t)

	if err := client.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	snap, err := client.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.RunID != "run-2" || ctrl.restarts != 1 {
		t.Fatalf("restart not forwarded: %q %d", snap.RunID, ctrl.restarts)
	}
}

func TestLogsReplaysAndEnds(t *testing.T) {
	ctrl := newFakeController(0)
	ctrl.output[0] = []lib.ConsoleLine{
		{PeerID: 0, Stream: lib.StreamStdout, Text: "listening on 8000"},
		{PeerID: 0, Stream: lib.StreamStderr, Text: "warning: slow"},
		{PeerID: 0, Stream: lib.StreamStdout, Text: ""},
	}
	client := startBufconn(t, ctrl, nil)

	var got []lib.ConsoleLine
	err := client.Logs(testContext(t), 0, func(line lib.ConsoleLine) error {
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %+v", got)
	}
	for i := range got {
		if got[i] != ctrl.output[0][i] {
			t.Fatalf("line %d: got %+v want %+v", i, got[i], ctrl.output[0][i])
		}
	}

	if err := client.Logs(testContext(t), 4, func(lib.ConsoleLine) error { return nil }); !errors.Is(err, lib.ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestLogsCallbackErrorStops(t *testing.T) {
	ctrl := newFakeController(0)
	ctrl.output[0] = []lib.ConsoleLine{{Text: "a"}, {Text: "b"}}
	client := startBufconn(t, ctrl, nil)

	stop := errors.New("enough")
	n := 0
	err := client.Logs(testContext(t), 0, func(lib.ConsoleLine) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("expected callback error after one line, got %v after %d", err, n)
	}
}

func TestListenUnixReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctl.sock")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write stale socket: %v", err)
	}

	lis, err := Listen("unix:" + path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if _, ok := lis.Addr().(*net.UnixAddr); !ok {
		t.Fatalf("expected unix listener, got %T", lis.Addr())
	}

	if _, err := Listen("unix://" + path); err == nil {
		t.Fatalf("expected second listener on a live socket to fail")
	}

	srv, err := NewGRPCServer(newFakeController(0), lis, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer: %v", err)
	}
	go func() { _ = srv.Serve() }()

	client, err := Dial("unix:"+path, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	if _, err := client.State(testContext(t)); err != nil {
		t.Fatalf("State over unix socket: %v", err)
	}

	srv.Stop()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected socket to be removed, got %v", err)
	}
}

func TestSplitAddress(t *testing.T) {
	cases := map[string][2]string{
		"unix:.peer-runner.sock": {"unix", ".peer-runner.sock"},
		"unix:///tmp/peer.sock":  {"unix", "/tmp/peer.sock"},
		"tcp://localhost:50051":  {"tcp", "localhost:50051"},
		"localhost:50051":        {"tcp", "localhost:50051"},
	}
	for in, want := range cases {
		network, addr := splitAddress(in)
		if network != want[0] || addr != want[1] {
			t.Fatalf("splitAddress(%q) = %q %q, want %q %q", in, network, addr, want[0], want[1])
		}
	}
	if got := dialTarget("unix:///tmp/peer.sock"); got != "unix:/tmp/peer.sock" {
		t.Fatalf("unexpected dial target %q", got)
	}
}
