package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/backlog"
)

// Start launches peer peerID and registers it. The anchor is the peer later peers rendezvous
// through; a non-anchor peer receives the anchor's host and port as extra arguments.
// On failure nothing is registered and no descriptor is left open.
func (runner *Runner) Start(peerID int, anchor bool) (*lib.PeerStatus, error) {
	if peerID < 0 {
		return nil, fmt.Errorf("invalid peer id %d", peerID)
	}
	if runner.Has(peerID) {
		return nil, ErrPeerExists
	}

	port := runner.opts.BasePort + peerID
	args := append([]string(nil), runner.opts.Command[1:]...)
	args = append(args, runner.opts.Version, strconv.Itoa(peerID), lib.PeerName(peerID), strconv.Itoa(port))

	var anchorEndpoint *lib.Endpoint
	if anchor {
		anchorEndpoint = &lib.Endpoint{Host: runner.host(), Port: port}
	} else {
		runner.mu.RLock()
		known := runner.anchor
		runner.mu.RUnlock()
		if known == nil {
			return nil, ErrNoAnchor
		}
		args = append(args, known.Host, strconv.Itoa(known.Port))
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", lib.PeerName(peerID), err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("stderr pipe for %s: %w", lib.PeerName(peerID), err)
	}

	cmd := exec.Command(runner.opts.Command[0], args...)
	cmd.Dir = runner.opts.Dir
	cmd.SysProcAttr = sysProcAttr()
	// cmd.Stdin is left nil, so it will use /dev/null
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	logger.Printf("Starting %s: %s %v", lib.PeerName(peerID), cmd.Path, args)
	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		logger.Printf("Failed to start %s: %v", lib.PeerName(peerID), err)
		return nil, fmt.Errorf("spawn %s: %w", lib.PeerName(peerID), err)
	}
	// the child holds its own copies of the write ends
	closeAll(stdoutW, stderrW)

	entry := &peerEntry{
		id:      peerID,
		anchor:  anchor,
		port:    port,
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		start:   time.Now(),
		stdout:  stdoutR,
		stderr:  stderrR,
		history: backlog.New(),
		exited:  make(chan struct{}),
	}

	go entry.wait()

	entry.readers = []*reader{
		runner.newReader(entry, lib.StreamStdout, stdoutR),
		runner.newReader(entry, lib.StreamStderr, stderrR),
	}
	for _, rd := range entry.readers {
		go rd.run()
	}

	runner.mu.Lock()
	runner.peers[peerID] = entry
	if anchor {
		runner.anchor = anchorEndpoint
		runner.anchorID = peerID
	}
	runner.mu.Unlock()

	status := entry.lockAndGetStatus()
	return &status, nil
}

// wait reaps the child and records how it ended.
func (entry *peerEntry) wait() {
	err := entry.cmd.Wait()

	entry.mu.Lock()
	if err != nil {
		logger.Printf("%s finished with err: %s", lib.PeerName(entry.id), err)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			entry.exitCode = &code
		}
	} else {
		logger.Printf("%s finished without error", lib.PeerName(entry.id))
		code := 0
		entry.exitCode = &code
	}
	now := time.Now()
	entry.end = &now
	entry.mu.Unlock()

	close(entry.exited)
}

func (runner *Runner) host() string {
	if runner.opts.Host != "" {
		return runner.opts.Host
	}
	return detectHost()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
