package backlog

import (
	"errors"
	"sync"
)

var errNotifierClosed = errors.New("notifier is closed")

// notifier wakes subscribers when new lines are appended. Each subscriber channel has a buffer of one,
// so a slow subscriber sees at most one pending wake-up and never blocks the publisher.
type notifier struct {
	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
	closed      bool
}

func newNotifier() *notifier {
	return &notifier{subscribers: make(map[chan struct{}]struct{})}
}

func (n *notifier) subscribe() (chan struct{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, errNotifierClosed
	}
	ch := make(chan struct{}, 1)
	n.subscribers[ch] = struct{}{}
	return ch, nil
}

func (n *notifier) unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subscribers[ch]; !ok {
		return
	}
	delete(n.subscribers, ch)
	close(ch)
}

func (n *notifier) publish() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// wake-up already pending
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.subscribers {
		close(ch)
	}
	n.subscribers = nil
}
