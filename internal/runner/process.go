package runner

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExitStatus is how a process ended. Signal is set when the process was
// killed by a signal, in which case Code carries no meaning.
type ExitStatus struct {
	Code   int
	Signal os.Signal
}

// Signaled reports whether the process was terminated by a signal.
func (s ExitStatus) Signaled() bool { return s.Signal != nil }

// Process is a started-or-startable child process.
type Process interface {
	Start() error
	// Wait blocks until the process exits and its output has been
	// delivered. Non-zero exits and signals are reported through the
	// status, not err.
	Wait() (ExitStatus, error)
	Signal(sig os.Signal) error
	Pid() int
}

// Launcher prepares a Process for spec with its output routed to stdout and
// stderr.
type Launcher interface {
	Launch(spec Spec, stdout, stderr io.Writer) Process
}

// ExecLauncher launches real processes with os/exec.
type ExecLauncher struct {
	// WaitDelay bounds how long Wait keeps reading output after the
	// process exits, in case a grandchild still holds the pipes.
	WaitDelay time.Duration
}

// Launch implements Launcher.
func (l ExecLauncher) Launch(spec Spec, stdout, stderr io.Writer) Process {
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Env = spec.Env.Vars()
	cmd.Dir = spec.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = l.WaitDelay
	return &execProcess{cmd: cmd}
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Start() error {
	return p.cmd.Start()
}

func (p *execProcess) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return ExitStatus{Code: -1}, err
	}

	state := p.cmd.ProcessState
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal()}, nil
	}
	return ExitStatus{Code: state.ExitCode()}, nil
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Clock schedules the deadline callback.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback created by a Clock.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
