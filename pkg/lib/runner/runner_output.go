package runner

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// reader drains one output pipe of one peer into the sink and the peer history.
type reader struct {
	peerID int
	stream lib.StreamKind
	src    *os.File
	sink   Sink
	append func(...lib.ConsoleLine)

	startDelay time.Duration
	flushPause time.Duration

	// draining is set once the peer is being stopped: pauses are skipped and the reader runs to EOF.
	draining atomic.Bool
	// stopped makes the reader exit after its current iteration.
	stopped atomic.Bool
	wake    chan struct{}
	done    chan struct{}
}

func (runner *Runner) newReader(entry *peerEntry, stream lib.StreamKind, src *os.File) *reader {
	return &reader{
		peerID:     entry.id,
		stream:     stream,
		src:        src,
		sink:       runner.opts.Sink,
		append:     entry.history.Append,
		startDelay: runner.opts.StartDelay,
		flushPause: runner.opts.FlushPause,
		wake:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (rd *reader) run() {
	defer close(rd.done)

	// let the child come up before the first read
	rd.pause(rd.startDelay)

	buf := make([]byte, readSize)
	var pending []byte
	for !rd.stopped.Load() {
		n, err := rd.src.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete, rest := splitComplete(pending)
			if len(rest) > 0 && (len(rest) >= readSize || !rd.more()) {
				// nothing else is buffered: print the partial line rather than sit on it
				complete, rest = pending, nil
			}
			pending = rest
			if len(complete) > 0 {
				rd.flush(complete)
				rd.pause(rd.flushPause)
			}
		}
		if err != nil {
			// end of stream or pipe closed during shutdown
			logger.Printf("%s %s reader finished: %v", lib.PeerName(rd.peerID), rd.stream, err)
			break
		}
	}
	if len(pending) > 0 {
		rd.flush(pending)
	}
}

func (rd *reader) flush(chunk []byte) {
	lines := toLines(chunk)
	if _, err := rd.sink.PrintBlock(rd.peerID, rd.stream, lines); err != nil {
		logger.Printf("%s %s print failed: %v", lib.PeerName(rd.peerID), rd.stream, err)
	}

	history := make([]lib.ConsoleLine, 0, len(lines))
	for i, text := range lines {
		if i > 0 && text == "" {
			continue
		}
		history = append(history, lib.ConsoleLine{PeerID: rd.peerID, Stream: rd.stream, Text: text})
	}
	rd.append(history...)
}

// more reports whether the pipe already holds unread bytes.
func (rd *reader) more() bool {
	n, err := pendingBytes(rd.src)
	return err == nil && n > 0
}

// pause sleeps for d unless the reader is draining or stopped.
func (rd *reader) pause(d time.Duration) {
	if d <= 0 || rd.draining.Load() {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-rd.wake:
	}
}

// drain asks the reader to skip its pauses and run until end of stream.
func (rd *reader) drain() {
	if rd.draining.CompareAndSwap(false, true) {
		close(rd.wake)
	}
}

// stop makes the reader exit at its next check. The caller closes the pipe to interrupt a blocked read.
func (rd *reader) stop() {
	rd.stopped.Store(true)
	rd.drain()
}

// splitComplete splits b after its last newline.
func splitComplete(b []byte) (complete, rest []byte) {
	i := bytes.LastIndexByte(b, '\n')
	if i < 0 {
		return nil, b
	}
	return b[:i+1], b[i+1:]
}

// toLines decodes a chunk and splits it into lines without the trailing terminator.
func toLines(chunk []byte) []string {
	text := strings.ToValidUTF8(string(chunk), "�")
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Output subscribes to the output history of a peer: everything printed so far, then live lines
// until the peer is stopped or ctx is done.
func (runner *Runner) Output(ctx context.Context, peerID int) (<-chan lib.ConsoleLine, error) {
	entry, err := runner.getPeer(peerID)
	if err != nil {
		return nil, err
	}
	logger.Printf("Start subscription to output of %s", lib.PeerName(peerID))
	return entry.history.Subscribe(ctx, 64), nil
}
