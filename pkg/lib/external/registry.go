package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Registry is the long-running directory helper started once per supervisor session.
type Registry struct {
	Command []string
	Dir     string
	// SettleDelay is waited after the helper started so it can bind before peers look it up.
	SettleDelay time.Duration
	Output      io.Writer

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// Start launches the helper. An empty command disables the registry and Start is a no-op.
func (r *Registry) Start(ctx context.Context) error {
	if len(r.Command) == 0 {
		return nil
	}

	r.mu.Lock()
	if r.cmd != nil {
		r.mu.Unlock()
		return errors.New("registry already started")
	}

	cmd := exec.Command(r.Command[0], r.Command[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Output
	cmd.Stderr = r.Output
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	logger.Printf("Starting registry: %v", r.Command)
	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("start registry: %w", err)
	}
	r.cmd = cmd
	r.exited = make(chan struct{})
	exited := r.exited
	r.mu.Unlock()

	go func() {
		err := cmd.Wait()
		logger.Printf("Registry exited: %v", err)
		close(exited)
	}()

	if r.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-exited:
		r.abort()
		return errors.New("registry exited during startup")
	case <-ctx.Done():
		r.abort()
		return ctx.Err()
	}
}

// abort tears down a helper whose startup failed, together with anything left in its process group.
func (r *Registry) abort() {
	r.mu.Lock()
	cmd, exited := r.cmd, r.exited
	r.cmd = nil
	r.mu.Unlock()
	if cmd == nil {
		return
	}

	logger.Printf("Aborting registry startup (pid %d)", cmd.Process.Pid)
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		logger.Printf("Failed to terminate registry: %v", err)
	}
	<-exited
}

// Running reports whether the helper was started and has not exited.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return false
	}
	select {
	case <-r.exited:
		return false
	default:
		return true
	}
}

// Stop terminates the helper and waits until it is reaped.
func (r *Registry) Stop() error {
	r.mu.Lock()
	cmd, exited := r.cmd, r.exited
	r.cmd = nil
	r.mu.Unlock()

	if cmd == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("terminate registry: %w", err)
	}
	<-exited
	return nil
}
