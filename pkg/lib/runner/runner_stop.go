package runner

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// Stop tears peerID down and removes it from the table: the process group is terminated and reaped,
// the readers drain what the peer wrote and exit, and both pipes are closed.
func (runner *Runner) Stop(peerID int) (*lib.PeerStatus, error) {
	entry, err := runner.getPeer(peerID)
	if err != nil {
		return nil, err
	}

	entry.terminate()
	entry.reap(runner.opts.StopTimeout)
	entry.release()

	runner.mu.Lock()
	delete(runner.peers, peerID)
	runner.mu.Unlock()

	status := entry.lockAndGetStatus()
	return &status, nil
}

// StopAll terminates every peer, waits until all of them are reaped and released, and empties the table.
// The anchor endpoint is forgotten so the next fleet records its own.
func (runner *Runner) StopAll() []lib.PeerStatus {
	runner.mu.RLock()
	entries := make([]*peerEntry, 0, len(runner.peers))
	for _, entry := range runner.peers {
		entries = append(entries, entry)
	}
	runner.mu.RUnlock()

	for _, entry := range entries {
		entry.terminate()
	}

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, entry := range entries {
		go func(entry *peerEntry) {
			defer wg.Done()
			entry.reap(runner.opts.StopTimeout)
			entry.release()
		}(entry)
	}
	wg.Wait()

	runner.mu.Lock()
	out := make([]lib.PeerStatus, 0, len(entries))
	for _, entry := range entries {
		delete(runner.peers, entry.id)
		out = append(out, entry.lockAndGetStatus())
	}
	runner.anchor = nil
	runner.mu.Unlock()

	return out
}

// terminate switches the readers to draining and sends SIGTERM to the peer's process group.
func (entry *peerEntry) terminate() {
	entry.stopOnce.Do(func() {
		for _, rd := range entry.readers {
			rd.drain()
		}
		select {
		case <-entry.exited:
			return
		default:
		}
		logger.Printf("Terminating %s (pid %d)", lib.PeerName(entry.id), entry.pid)
		if err := signalGroup(entry.pid, unix.SIGTERM); err != nil {
			logger.Printf("SIGTERM %s: %v", lib.PeerName(entry.id), err)
		}
	})
}

// reap blocks until the waiter has collected the child. After timeout the group is killed; a zero
// timeout waits indefinitely.
func (entry *peerEntry) reap(timeout time.Duration) {
	if timeout <= 0 {
		<-entry.exited
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-entry.exited:
	case <-timer.C:
		logger.Printf("%s did not exit after %s, killing", lib.PeerName(entry.id), timeout)
		if err := signalGroup(entry.pid, unix.SIGKILL); err != nil {
			logger.Printf("SIGKILL %s: %v", lib.PeerName(entry.id), err)
		}
		<-entry.exited
	}
}

// release waits for the readers to reach end of stream, forcing them out after drainWindow, then
// closes both pipes and the history.
func (entry *peerEntry) release() {
	deadline := time.NewTimer(drainWindow)
	defer deadline.Stop()

	for _, rd := range entry.readers {
		select {
		case <-rd.done:
		case <-deadline.C:
			// a grandchild may still hold the write end: stop reading
			logger.Printf("%s readers did not drain, closing pipes", lib.PeerName(entry.id))
			for _, r := range entry.readers {
				r.stop()
			}
			closeAll(entry.stdout, entry.stderr)
		}
	}
	for _, rd := range entry.readers {
		<-rd.done
	}

	closeAll(entry.stdout, entry.stderr)
	entry.history.Close()
}
