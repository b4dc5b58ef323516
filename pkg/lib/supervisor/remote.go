package supervisor

import (
	"context"
)

type requestKind int

const (
	requestStart requestKind = iota
	requestStop
	requestRestart
)

type request struct {
	kind   requestKind
	peerID int
	reply  chan error
}

// StartPeer asks the dispatcher to start one peer, as the operator's "start <id>" would.
func (s *Supervisor) StartPeer(ctx context.Context, peerID int) error {
	return s.submit(ctx, request{kind: requestStart, peerID: peerID})
}

// StopPeer asks the dispatcher to stop one peer, as the operator's "stop <id>" would.
func (s *Supervisor) StopPeer(ctx context.Context, peerID int) error {
	return s.submit(ctx, request{kind: requestStop, peerID: peerID})
}

// Restart asks the dispatcher to relaunch the whole fleet. It returns once the request was accepted.
func (s *Supervisor) Restart(ctx context.Context) error {
	return s.submit(ctx, request{kind: requestRestart})
}

func (s *Supervisor) submit(ctx context.Context, req request) error {
	req.reply = make(chan error, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle runs a remote request on the dispatcher goroutine.
func (s *Supervisor) handle(ctx context.Context, req request) Action {
	switch req.kind {
	case requestStart:
		logger.Printf("Remote start of peer %d", req.peerID)
		err := s.startPeer(req.peerID)
		s.report(err)
		req.reply <- err
	case requestStop:
		logger.Printf("Remote stop of peer %d", req.peerID)
		err := s.stopPeer(req.peerID)
		s.report(err)
		req.reply <- err
	case requestRestart:
		s.opts.Console.Println("Restart requested remotely.")
		req.reply <- nil
		return ActionRestart
	}
	return ActionContinue
}
