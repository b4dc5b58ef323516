package runner

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// pendingBytes returns how many bytes can be read from the pipe without blocking.
// It goes through SyscallConn so the descriptor stays in non-blocking mode.
func pendingBytes(f *os.File) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var ioctlErr error
	err = rc.Control(func(fd uintptr) {
		n, ioctlErr = unix.IoctlGetInt(int(fd), fionread)
	})
	if err != nil {
		return 0, err
	}
	return n, ioctlErr
}

// sysProcAttr puts every peer in its own process group so that it and its children are signalled as a unit.
func sysProcAttr() *unix.SysProcAttr {
	return &unix.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group led by pid.
func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// already gone
		return nil
	}
	return err
}
