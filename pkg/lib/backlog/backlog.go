// Package backlog keeps the output history of one peer so that late subscribers (the remote logs
// command) can replay everything the peer printed and then follow it live.
package backlog

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

var logger = log.New(lib.LogWriter, "backlog: ", log.LstdFlags)

// node is an element of the singly linked list. The head is a sentinel with a zero line.
type node struct {
	line lib.ConsoleLine
	next atomic.Pointer[node]
}

// Backlog is an append-only list of console lines. Appends are serialized; readers walk the list
// without locks through the atomic next pointers.
type Backlog struct {
	head *node

	mu     sync.Mutex // guards tail and count
	tail   *node
	count  int
	closed bool

	notifier *notifier
}

// New creates an empty Backlog.
func New() *Backlog {
	sentinel := &node{}
	return &Backlog{
		head:     sentinel,
		tail:     sentinel,
		notifier: newNotifier(),
	}
}

// Append adds lines to the end of the backlog and wakes subscribers. Appending to a closed
// backlog is a no-op.
func (b *Backlog) Append(lines ...lib.ConsoleLine) {
	if b == nil || len(lines) == 0 {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for _, line := range lines {
		n := &node{line: line}
		b.tail.next.Store(n)
		b.tail = n
		b.count++
	}
	b.mu.Unlock()

	b.notifier.publish()
}

// Close marks the end of the output. Live subscribers drain what is left and their channels close.
func (b *Backlog) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.notifier.close()
}

// Len returns the number of stored lines.
func (b *Backlog) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// ForEach iterates over the stored lines in insertion order until iter returns false.
func (b *Backlog) ForEach(iter func(lib.ConsoleLine) bool) {
	if b == nil || iter == nil {
		return
	}
	for cur := b.head.next.Load(); cur != nil; cur = cur.next.Load() {
		if !iter(cur.line) {
			return
		}
	}
}

// Lines returns a copy of the stored lines.
func (b *Backlog) Lines() []lib.ConsoleLine {
	var out []lib.ConsoleLine
	b.ForEach(func(l lib.ConsoleLine) bool {
		out = append(out, l)
		return true
	})
	return out
}

// Subscribe replays the backlog and then follows new lines. The channel closes after the backlog is
// closed and drained, or when ctx is done.
func (b *Backlog) Subscribe(ctx context.Context, capacity int) <-chan lib.ConsoleLine {
	ch := make(chan lib.ConsoleLine, capacity)
	wake, err := b.notifier.subscribe()
	if err != nil {
		wake = nil
	}
	go b.follow(ctx, wake, ch)
	return ch
}

func (b *Backlog) follow(ctx context.Context, wake chan struct{}, ch chan lib.ConsoleLine) {
	defer close(ch)
	if wake != nil {
		defer b.notifier.unsubscribe(wake)
	}

	id := lib.NewID()
	logger.Printf("%s subscriber started", id)

	prev := b.head
	for {
		current := prev.next.Load()
		if current == nil {
			if wake == nil {
				logger.Printf("%s backlog drained", id)
				return
			}
			select {
			case _, ok := <-wake:
				if !ok {
					// closed: one more pass picks up lines appended before Close
					wake = nil
				}
			case <-ctx.Done():
				return
			}
			continue
		}
		prev = current

		select {
		case ch <- current.line:
		case <-ctx.Done():
			return
		}
	}
}
