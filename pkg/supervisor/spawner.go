package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Command describes the worker executable. It is resolved once from
// configuration and never mutated between invocations; every spawn runs
// the exact same thing.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is the full environment for the worker. When nil the worker
	// inherits the harness environment unmodified.
	Env []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}

// SpawnError reports that process creation itself failed. Unlike a worker
// exit, this is fatal: a supervisor that cannot spawn must fail loudly
// rather than die silently.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn worker %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Process is a single running worker invocation
type Process interface {
	PID() int
	// Wait blocks until the process exits and returns its exit status
	Wait() ExitStatus
	// Terminate requests a graceful stop (SIGTERM to the process group)
	Terminate() error
	// Kill force-stops the process group
	Kill() error
}

// Spawner creates worker processes. The production implementation uses
// os/exec; tests substitute a scripted fake.
type Spawner interface {
	Spawn(cmd Command) (Process, error)
}

// ExecSpawner spawns real OS processes
type ExecSpawner struct{}

func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

func (s *ExecSpawner) Spawn(c Command) (Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	// The worker logs straight into the harness's stream; the CI runner
	// captures both together.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Own process group, so a graceful stop reaches the worker's
	// children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() ExitStatus {
	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{Code: 0, Reason: ExitReasonSuccess}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return determineExitStatus(exitErr.ExitCode(), status)
		}
		return ExitStatus{Code: exitErr.ExitCode(), Reason: ExitReasonError}
	}

	return ExitStatus{Code: -1, Reason: ExitReasonUnknown}
}

func (p *execProcess) Terminate() error {
	return p.signalGroup(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signalGroup(syscall.SIGKILL)
}

func (p *execProcess) signalGroup(sig syscall.Signal) error {
	// Negative PID targets the whole process group
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
		// Group may already be gone; fall back to the process itself
		return p.cmd.Process.Signal(sig)
	}
	return nil
}
