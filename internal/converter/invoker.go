// Package converter builds and spawns Chunker CLI processes.
//
// One Invoke call produces one java child process with both output
// streams attached. Cancellation of the passed context sends an interrupt
// and escalates to a kill once the grace window expires; the same window
// bounds how long the streams stay open after the process is gone.
package converter

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

// DefaultJava is used when the config leaves the runtime path empty
const DefaultJava = "java"

// DefaultGrace is the interrupt-to-kill window applied on cancellation
const DefaultGrace = 5 * time.Second

// CLI invokes the Chunker command-line converter through a Java runtime
type CLI struct {
	cfg   domain.ConversionConfig
	grace time.Duration
}

// New returns a CLI invoker for one batch's conversion config
func New(cfg domain.ConversionConfig) *CLI {
	return &CLI{cfg: cfg, grace: DefaultGrace}
}

// WithGrace overrides the interrupt-to-kill window
func (c *CLI) WithGrace(d time.Duration) *CLI {
	c.grace = d
	return c
}

// OutputDir resolves where the converted copy of world lands: the world
// name under the output root, with _<format lower-cased> appended when the
// suffix option is on. The name itself is never case-folded.
func (c *CLI) OutputDir(world domain.WorldEntry) string {
	name := world.Name
	if c.cfg.AddSuffix {
		name += "_" + strings.ToLower(c.cfg.Format)
	}
	return filepath.Join(c.cfg.OutputRoot, name)
}

// Args builds the argument vector handed to the Java runtime for world
func (c *CLI) Args(world domain.WorldEntry) []string {
	return []string{
		"-jar", c.cfg.JarPath,
		"-i", world.Path,
		"-o", c.OutputDir(world),
		"-f", c.cfg.Format,
	}
}

// Invoke creates the output directory and starts one converter process.
// Anything that fails before the process is running comes back as a
// *SpawnError. The context governs the process lifetime: cancelling it
// sends os.Interrupt, and once the grace window expires the child is
// killed and both output streams are forced to EOF — even when a
// grandchild still holds the pipe write ends.
func (c *CLI) Invoke(ctx context.Context, world domain.WorldEntry) (*Process, error) {
	if err := os.MkdirAll(c.OutputDir(world), 0755); err != nil {
		return nil, &SpawnError{World: world.Name, Err: err}
	}

	java := c.cfg.JavaPath
	if java == "" {
		java = DefaultJava
	}

	cmd := exec.CommandContext(ctx, java, c.Args(world)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = c.grace

	// Non-file Stdout/Stderr make exec copy the child's output through
	// pipes it is willing to abandon at WaitDelay. Handing the OS pipes
	// out directly (StdoutPipe) would leave the readers blocked for as
	// long as any inheritor of the write ends lives, because the forced
	// close only happens inside cmd.Wait.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{World: world.Name, Err: err}
	}

	p := &Process{stdout: outR, stderr: errR, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		outW.Close()
		errW.Close()
		p.code, p.waitErr = classifyExit(cmd, err)
		close(p.done)
	}()
	return p, nil
}

// classifyExit folds cmd.Wait's error into an exit code. ErrWaitDelay
// means the process itself exited but its output had to be abandoned at
// the grace deadline; the real exit status is still on ProcessState.
func classifyExit(cmd *exec.Cmd, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return cmd.ProcessState.ExitCode(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Process is one live converter run. Its streams reach EOF once the
// process has exited (or the grace window forced its output closed).
type Process struct {
	stdout io.Reader
	stderr io.Reader

	done    chan struct{}
	code    int
	waitErr error
}

// Stdout is the converter's progress/log stream
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr is the converter's diagnostic stream
func (p *Process) Stderr() io.Reader { return p.stderr }

// Wait blocks until the process has exited and its streams were released,
// then returns the exit code. Safe to call more than once. A signal death
// reports code -1 with no error, anything else unexpected comes back as
// the error.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.code, p.waitErr
}
