// Package external wraps the programs the supervisor drives but does not implement: the build script,
// the interactive command relay and the directory registry helper.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

var logger = log.New(lib.LogWriter, "external: ", log.LstdFlags)

// BuildError reports a build that ran and failed.
type BuildError struct {
	ExitCode int
	Output   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed with exit code %d", e.ExitCode)
}

// Builder runs the build command with its output captured.
type Builder struct {
	Command []string
	Dir     string
}

// Build runs the build. A non-zero exit is returned as *BuildError carrying the captured stderr
// (or stdout when stderr is empty); any other error means the command could not be run at all.
func (b Builder) Build(ctx context.Context) error {
	if len(b.Command) == 0 {
		return errors.New("build command is required")
	}

	cmd := exec.CommandContext(ctx, b.Command[0], b.Command[1:]...)
	cmd.Dir = b.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Printf("Running build: %v", b.Command)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out := stderr.String()
		if strings.TrimSpace(out) == "" {
			out = stdout.String()
		}
		return &BuildError{ExitCode: exitErr.ExitCode(), Output: out}
	}
	return fmt.Errorf("run build: %w", err)
}

// Relay forwards free-text operator commands to an external program.
type Relay struct {
	Command []string
	Dir     string
	// Output receives the relay's stdout and stderr.
	Output io.Writer
}

// Forward runs the relay with args appended to its command line and waits for it. Its output is not parsed.
func (r Relay) Forward(ctx context.Context, args []string) error {
	if len(r.Command) == 0 {
		return errors.New("no relay command configured")
	}

	argv := append(append([]string(nil), r.Command[1:]...), args...)
	cmd := exec.CommandContext(ctx, r.Command[0], argv...)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Output
	cmd.Stderr = r.Output

	logger.Printf("Relaying %v", argv)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("relay %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
