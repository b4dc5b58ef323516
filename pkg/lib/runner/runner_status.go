package runner

import (
	"sort"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// State returns the status of every registered peer, ordered by id.
func (runner *Runner) State() []lib.PeerStatus {
	runner.mu.RLock()
	entries := make([]*peerEntry, 0, len(runner.peers))
	for _, entry := range runner.peers {
		entries = append(entries, entry)
	}
	runner.mu.RUnlock()

	out := make([]lib.PeerStatus, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.lockAndGetStatus())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// Status returns the status of one peer.
func (runner *Runner) Status(peerID int) (*lib.PeerStatus, error) {
	entry, err := runner.getPeer(peerID)
	if err != nil {
		return nil, err
	}
	status := entry.lockAndGetStatus()
	return &status, nil
}

// Has reports whether peerID is registered.
func (runner *Runner) Has(peerID int) bool {
	runner.mu.RLock()
	defer runner.mu.RUnlock()
	_, ok := runner.peers[peerID]
	return ok
}

// Len returns the number of registered peers.
func (runner *Runner) Len() int {
	runner.mu.RLock()
	defer runner.mu.RUnlock()
	return len(runner.peers)
}

// Anchor returns the id and endpoint of the anchor of the current fleet, if one was started.
func (runner *Runner) Anchor() (int, lib.Endpoint, bool) {
	runner.mu.RLock()
	defer runner.mu.RUnlock()
	if runner.anchor == nil {
		return 0, lib.Endpoint{}, false
	}
	return runner.anchorID, *runner.anchor, true
}

func (runner *Runner) getPeer(peerID int) (*peerEntry, error) {
	runner.mu.RLock()
	entry := runner.peers[peerID]
	runner.mu.RUnlock()
	if entry == nil {
		return nil, ErrPeerNotFound
	}
	return entry, nil
}

func (entry *peerEntry) lockAndGetStatus() lib.PeerStatus {
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	st := lib.PeerStatus{
		PeerID:    entry.id,
		Pid:       entry.pid,
		Anchor:    entry.anchor,
		Port:      entry.port,
		StartTime: entry.start,
	}
	if entry.exitCode != nil {
		code := *entry.exitCode
		st.ExitCode = &code
	}
	if entry.end != nil {
		t := *entry.end
		st.EndTime = &t
	}
	return st
}
