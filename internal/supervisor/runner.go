package supervisor

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Command is the program a Runner starts.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// Runner starts a Command and streams its output into stdout and stderr.
// Cancelling ctx asks the process to terminate.
type Runner interface {
	Start(ctx context.Context, cmd Command, stdout, stderr io.Writer) (Handle, error)
}

// Handle is a started process.
type Handle interface {
	// PID is the local process id, or 0 when the process is not local.
	PID() int
	// Wait blocks until the process has exited and its output is drained.
	Wait() (ExitStatus, error)
}

// LocalRunner runs commands on this machine.
type LocalRunner struct {
	// WaitDelay bounds how long a terminated process may keep its pipes open.
	WaitDelay time.Duration
}

func (r LocalRunner) Start(ctx context.Context, c Command, stdout, stderr io.Writer) (Handle, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localHandle{cmd: cmd}, nil
}

type localHandle struct {
	cmd *exec.Cmd
}

func (h *localHandle) PID() int { return h.cmd.Process.Pid }

func (h *localHandle) Wait() (ExitStatus, error) {
	err := h.cmd.Wait()
	state := h.cmd.ProcessState
	if state == nil {
		return ExitStatus{}, err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: signalName(ws.Signal())}, nil
	}
	return ExitStatus{Code: state.ExitCode()}, nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == '=' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
